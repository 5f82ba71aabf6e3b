package model

import "time"

const (
	MemberActive = "active"
	MemberLocked = "locked"
)

// swagger:model Member
type Member struct {
	BaseModel
	FullName    string `gorm:"size:100;not null" json:"fullName"`
	Email       string `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Password    string `gorm:"size:100;not null" json:"-"`
	Phone       string `gorm:"size:20" json:"phone"`
	Avatar      string `gorm:"size:255" json:"avatar"`
	Status      string `gorm:"size:20;default:'active'" json:"status"`
	TargetScore int    `gorm:"default:0" json:"targetScore"`
	// IRT 能力值 theta，未校准时为空
	IrtAbility       *float64   `json:"irtAbility"`
	AbilityUpdatedAt *time.Time `json:"abilityUpdatedAt,omitempty"`
	LastLogin        *time.Time `json:"lastLogin,omitempty"`
	LastSeen         *time.Time `json:"lastSeen,omitempty"`
}

func (Member) TableName() string {
	return "members"
}

// Ability 返回 theta，未校准时按 0 处理
func (m *Member) Ability() float64 {
	if m.IrtAbility == nil {
		return 0
	}
	return *m.IrtAbility
}
