package service

import (
	"errors"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"

	"gorm.io/gorm"
)

type EmployeeService struct {
	EmployeeRepo *repository.EmployeeRepository
	DeptRepo     *repository.DepartmentRepository
}

func NewEmployeeService(employeeRepo *repository.EmployeeRepository, deptRepo *repository.DepartmentRepository) *EmployeeService {
	return &EmployeeService{
		EmployeeRepo: employeeRepo,
		DeptRepo:     deptRepo,
	}
}

type EmployeeUpdate struct {
	FullName     *string         `json:"fullName"`
	Phone        *string         `json:"phone"`
	DepartmentID *uint           `json:"departmentId"`
	Role         *model.UserRole `json:"role" binding:"omitempty,oneof=admin staff"`
	Password     *string         `json:"password" binding:"omitempty,min=6"`
}

func (s *EmployeeService) Get(id uint) (*model.Employee, error) {
	emp, err := s.EmployeeRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrEmployeeNotFound
		}
		return nil, err
	}
	return emp, nil
}

func (s *EmployeeService) List(keyword string, departmentID uint, page, limit int) ([]model.Employee, int64, error) {
	return s.EmployeeRepo.List(strings.TrimSpace(keyword), departmentID, page, limit)
}

func (s *EmployeeService) checkDepartment(id *uint) error {
	if id == nil {
		return nil
	}
	if _, err := s.DeptRepo.FindByID(*id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrDepartmentNotFound
		}
		return err
	}
	return nil
}

func (s *EmployeeService) Create(emp *model.Employee) error {
	emp.Email = strings.ToLower(strings.TrimSpace(emp.Email))
	if _, err := s.EmployeeRepo.FindByEmail(emp.Email); err == nil {
		return util.ErrEmailRegistered
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := s.checkDepartment(emp.DepartmentID); err != nil {
		return err
	}
	if emp.Role == "" {
		emp.Role = model.RoleStaff
	}
	hashed, err := hashPassword(emp.Password)
	if err != nil {
		return err
	}
	emp.Password = hashed
	return s.EmployeeRepo.Create(emp)
}

func (s *EmployeeService) Update(id uint, req EmployeeUpdate) (*model.Employee, error) {
	emp, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		emp.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		emp.Phone = *req.Phone
	}
	if req.DepartmentID != nil {
		if err := s.checkDepartment(req.DepartmentID); err != nil {
			return nil, err
		}
		emp.DepartmentID = req.DepartmentID
		emp.Department = nil
	}
	if req.Role != nil {
		emp.Role = *req.Role
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		emp.Password = hashed
	}
	if err := s.EmployeeRepo.Update(emp); err != nil {
		return nil, err
	}
	return emp, nil
}

func (s *EmployeeService) SetDisabled(id uint, disabled bool) error {
	emp, err := s.Get(id)
	if err != nil {
		return err
	}
	emp.Disabled = disabled
	return s.EmployeeRepo.Update(emp)
}

func (s *EmployeeService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.EmployeeRepo.Delete(id)
}
