package service

import (
	"errors"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"

	"gorm.io/gorm"
)

type DepartmentService struct {
	DeptRepo *repository.DepartmentRepository
}

func NewDepartmentService(deptRepo *repository.DepartmentRepository) *DepartmentService {
	return &DepartmentService{DeptRepo: deptRepo}
}

func (s *DepartmentService) Get(id uint) (*model.Department, error) {
	dept, err := s.DeptRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrDepartmentNotFound
		}
		return nil, err
	}
	return dept, nil
}

func (s *DepartmentService) List() ([]model.Department, error) {
	return s.DeptRepo.List()
}

func (s *DepartmentService) Create(dept *model.Department) error {
	dept.Code = strings.ToUpper(strings.TrimSpace(dept.Code))
	dept.Name = strings.TrimSpace(dept.Name)
	if _, err := s.DeptRepo.FindByCode(dept.Code); err == nil {
		return util.ErrDepartmentCodeTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.DeptRepo.Create(dept)
}

func (s *DepartmentService) Update(id uint, name, description string) (*model.Department, error) {
	dept, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		dept.Name = name
	}
	dept.Description = description
	if err := s.DeptRepo.Update(dept); err != nil {
		return nil, err
	}
	return dept, nil
}

// Delete 仍有员工归属的部门不允许删除
func (s *DepartmentService) Delete(id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	count, err := s.DeptRepo.CountEmployees(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return util.ErrDepartmentInUse
	}
	return s.DeptRepo.Delete(id)
}
