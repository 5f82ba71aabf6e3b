package model

// swagger:model Department
type Department struct {
	BaseModel
	Code        string `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

func (Department) TableName() string {
	return "departments"
}

// swagger:model Employee
type Employee struct {
	BaseModel
	FullName     string      `gorm:"size:100;not null" json:"fullName"`
	Email        string      `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password     string      `gorm:"size:100;not null" json:"-"`
	Phone        string      `gorm:"size:20" json:"phone"`
	DepartmentID *uint       `gorm:"index" json:"departmentId"`
	Department   *Department `gorm:"foreignKey:DepartmentID" json:"department,omitempty"`
	Role         UserRole    `gorm:"size:20;default:'staff'" json:"role"`
	Disabled     bool        `gorm:"default:false" json:"disabled"`
}

func (Employee) TableName() string {
	return "employees"
}
