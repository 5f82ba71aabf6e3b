package service

import (
	"errors"
	"strings"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	MemberRepo   *repository.MemberRepository
	EmployeeRepo *repository.EmployeeRepository
	Cfg          *config.Config
}

func NewAuthService(memberRepo *repository.MemberRepository, employeeRepo *repository.EmployeeRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		MemberRepo:   memberRepo,
		EmployeeRepo: employeeRepo,
		Cfg:          cfg,
	}
}

// LoginResult 登录成功后返回给客户端的令牌与账号概要
type LoginResult struct {
	Token    string            `json:"token"`
	Kind     model.AccountKind `json:"kind"`
	Role     model.UserRole    `json:"role"`
	ID       uint              `json:"id"`
	FullName string            `json:"fullName"`
	Email    string            `json:"email"`
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *AuthService) RegisterMember(member *model.Member) error {
	member.Email = strings.ToLower(strings.TrimSpace(member.Email))
	_, err := s.MemberRepo.FindByEmail(member.Email)
	if err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hashed, err := hashPassword(member.Password)
	if err != nil {
		return err
	}
	member.Password = hashed
	member.Status = model.MemberActive
	return s.MemberRepo.Create(member)
}

func (s *AuthService) LoginMember(email, password string) (*LoginResult, error) {
	member, err := s.MemberRepo.FindByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if member.Status == model.MemberLocked {
		return nil, util.ErrAccountDisabled
	}

	token, err := util.GenerateJWT(member.ID, model.KindMember, model.RoleMember, member.Email, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	_ = s.MemberRepo.UpdateLastLogin(member.ID)

	return &LoginResult{
		Token:    token,
		Kind:     model.KindMember,
		Role:     model.RoleMember,
		ID:       member.ID,
		FullName: member.FullName,
		Email:    member.Email,
	}, nil
}

func (s *AuthService) LoginEmployee(email, password string) (*LoginResult, error) {
	emp, err := s.EmployeeRepo.FindByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(emp.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if emp.Disabled {
		return nil, util.ErrAccountDisabled
	}

	token, err := util.GenerateJWT(emp.ID, model.KindEmployee, emp.Role, emp.Email, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:    token,
		Kind:     model.KindEmployee,
		Role:     emp.Role,
		ID:       emp.ID,
		FullName: emp.FullName,
		Email:    emp.Email,
	}, nil
}

// Profile 返回当前登录账号（*model.Member 或 *model.Employee）
func (s *AuthService) Profile(claims *util.Claims) (interface{}, error) {
	if claims.IsMember() {
		member, err := s.MemberRepo.FindByID(claims.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, util.ErrMemberNotFound
			}
			return nil, err
		}
		return member, nil
	}
	emp, err := s.EmployeeRepo.FindByID(claims.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrEmployeeNotFound
		}
		return nil, err
	}
	return emp, nil
}

func (s *AuthService) ChangePassword(claims *util.Claims, oldPassword, newPassword string) error {
	hashed, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	if claims.IsMember() {
		member, err := s.MemberRepo.FindByID(claims.AccountID)
		if err != nil {
			return util.ErrMemberNotFound
		}
		if bcrypt.CompareHashAndPassword([]byte(member.Password), []byte(oldPassword)) != nil {
			return util.ErrInvalidCredentials
		}
		member.Password = hashed
		return s.MemberRepo.Update(member)
	}

	emp, err := s.EmployeeRepo.FindByID(claims.AccountID)
	if err != nil {
		return util.ErrEmployeeNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(emp.Password), []byte(oldPassword)) != nil {
		return util.ErrInvalidCredentials
	}
	emp.Password = hashed
	return s.EmployeeRepo.Update(emp)
}
