package repository

import (
	"time"

	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

type MemberRepository struct {
	DB *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{DB: db}
}

func (r *MemberRepository) Create(member *model.Member) error {
	return r.DB.Create(member).Error
}

func (r *MemberRepository) FindByID(id uint) (*model.Member, error) {
	var member model.Member
	err := r.DB.First(&member, id).Error
	return &member, err
}

func (r *MemberRepository) FindByEmail(email string) (*model.Member, error) {
	var member model.Member
	err := r.DB.Where("email = ?", email).First(&member).Error
	return &member, err
}

func (r *MemberRepository) FindByIDs(ids []uint) ([]model.Member, error) {
	var members []model.Member
	if len(ids) == 0 {
		return members, nil
	}
	err := r.DB.Where("id IN ?", ids).Find(&members).Error
	return members, err
}

func (r *MemberRepository) List(keyword, status string, page, limit int) ([]model.Member, int64, error) {
	var members []model.Member
	var total int64

	query := r.DB.Model(&model.Member{})
	if keyword != "" {
		like := "%" + keyword + "%"
		query = query.Where("full_name LIKE ? OR email LIKE ? OR phone LIKE ?", like, like, like)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&members).Error
	return members, total, err
}

func (r *MemberRepository) Update(member *model.Member) error {
	return r.DB.Save(member).Error
}

func (r *MemberRepository) UpdateStatus(id uint, status string) error {
	return r.DB.Model(&model.Member{}).Where("id = ?", id).Update("status", status).Error
}

func (r *MemberRepository) Delete(id uint) error {
	return r.DB.Delete(&model.Member{}, id).Error
}

func (r *MemberRepository) UpdateLastSeen(id uint) error {
	return r.DB.Model(&model.Member{}).Where("id = ?", id).Update("last_seen", time.Now()).Error
}

func (r *MemberRepository) UpdateLastLogin(id uint) error {
	return r.DB.Model(&model.Member{}).Where("id = ?", id).Update("last_login", time.Now()).Error
}

// ResetAbility 清空 IRT 能力值，下次校准前按 0 处理
func (r *MemberRepository) ResetAbility(id uint) error {
	return r.DB.Model(&model.Member{}).Where("id = ?", id).
		Updates(map[string]interface{}{"irt_ability": nil, "ability_updated_at": nil}).Error
}
