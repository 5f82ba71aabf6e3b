package repository

import (
	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

type EmployeeRepository struct {
	DB *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{DB: db}
}

func (r *EmployeeRepository) Create(emp *model.Employee) error {
	return r.DB.Create(emp).Error
}

func (r *EmployeeRepository) FindByID(id uint) (*model.Employee, error) {
	var emp model.Employee
	err := r.DB.Preload("Department").First(&emp, id).Error
	return &emp, err
}

func (r *EmployeeRepository) FindByEmail(email string) (*model.Employee, error) {
	var emp model.Employee
	err := r.DB.Where("email = ?", email).First(&emp).Error
	return &emp, err
}

func (r *EmployeeRepository) List(keyword string, departmentID uint, page, limit int) ([]model.Employee, int64, error) {
	var emps []model.Employee
	var total int64

	query := r.DB.Model(&model.Employee{})
	if keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ?", like, like)
	}
	if departmentID > 0 {
		query = query.Where("department_id = ?", departmentID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Department").Order("created_at desc").Offset(offset).Limit(limit).Find(&emps).Error
	return emps, total, err
}

func (r *EmployeeRepository) Update(emp *model.Employee) error {
	return r.DB.Omit("Department").Save(emp).Error
}

func (r *EmployeeRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Employee{}, id).Error
}
