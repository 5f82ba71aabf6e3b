package service

import (
	"errors"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"

	"gorm.io/gorm"
)

type MemberService struct {
	MemberRepo *repository.MemberRepository
}

func NewMemberService(memberRepo *repository.MemberRepository) *MemberService {
	return &MemberService{MemberRepo: memberRepo}
}

// MemberUpdate 资料修改，空字段不覆盖
type MemberUpdate struct {
	FullName    *string `json:"fullName"`
	Phone       *string `json:"phone"`
	Avatar      *string `json:"avatar"`
	TargetScore *int    `json:"targetScore" binding:"omitempty,min=10,max=990"`
}

func (s *MemberService) get(id uint) (*model.Member, error) {
	member, err := s.MemberRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

func (s *MemberService) Get(id uint) (*model.Member, error) {
	return s.get(id)
}

func (s *MemberService) List(keyword, status string, page, limit int) ([]model.Member, int64, error) {
	return s.MemberRepo.List(strings.TrimSpace(keyword), status, page, limit)
}

// Create 员工后台直接创建会员
func (s *MemberService) Create(member *model.Member) error {
	member.Email = strings.ToLower(strings.TrimSpace(member.Email))
	if _, err := s.MemberRepo.FindByEmail(member.Email); err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hashed, err := hashPassword(member.Password)
	if err != nil {
		return err
	}
	member.Password = hashed
	if member.Status == "" {
		member.Status = model.MemberActive
	}
	return s.MemberRepo.Create(member)
}

func (s *MemberService) Update(id uint, req MemberUpdate) (*model.Member, error) {
	member, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		member.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		member.Phone = *req.Phone
	}
	if req.Avatar != nil {
		member.Avatar = *req.Avatar
	}
	if req.TargetScore != nil {
		member.TargetScore = *req.TargetScore
	}
	if err := s.MemberRepo.Update(member); err != nil {
		return nil, err
	}
	return member, nil
}

func (s *MemberService) SetLocked(id uint, locked bool) error {
	if _, err := s.get(id); err != nil {
		return err
	}
	status := model.MemberActive
	if locked {
		status = model.MemberLocked
	}
	return s.MemberRepo.UpdateStatus(id, status)
}

func (s *MemberService) Delete(id uint) error {
	if _, err := s.get(id); err != nil {
		return err
	}
	return s.MemberRepo.Delete(id)
}

func (s *MemberService) ResetAbility(id uint) error {
	if _, err := s.get(id); err != nil {
		return err
	}
	return s.MemberRepo.ResetAbility(id)
}
