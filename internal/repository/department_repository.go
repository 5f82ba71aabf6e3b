package repository

import (
	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

type DepartmentRepository struct {
	DB *gorm.DB
}

func NewDepartmentRepository(db *gorm.DB) *DepartmentRepository {
	return &DepartmentRepository{DB: db}
}

func (r *DepartmentRepository) Create(dept *model.Department) error {
	return r.DB.Create(dept).Error
}

func (r *DepartmentRepository) FindByID(id uint) (*model.Department, error) {
	var dept model.Department
	err := r.DB.First(&dept, id).Error
	return &dept, err
}

func (r *DepartmentRepository) FindByCode(code string) (*model.Department, error) {
	var dept model.Department
	err := r.DB.Where("code = ?", code).First(&dept).Error
	return &dept, err
}

func (r *DepartmentRepository) List() ([]model.Department, error) {
	var depts []model.Department
	err := r.DB.Order("code asc").Find(&depts).Error
	return depts, err
}

func (r *DepartmentRepository) Update(dept *model.Department) error {
	return r.DB.Save(dept).Error
}

func (r *DepartmentRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Department{}, id).Error
}

func (r *DepartmentRepository) CountEmployees(id uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Employee{}).Where("department_id = ?", id).Count(&count).Error
	return count, err
}
