package repository

import (
	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

// QuestionFilter 题目列表筛选条件
type QuestionFilter struct {
	Part     int
	Keyword  string
	ParentID *uint
	// 仅顶层题目（独立题与题组），不含题组内的小题
	TopLevel bool
	Page     int
	Limit    int
}

// Create 题目与选项、题组子题在同一事务中写入
func (r *QuestionRepository) Create(q *model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(q).Error
	})
}

func (r *QuestionRepository) CreateBatch(questions []*model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		for _, q := range questions {
			if err := tx.Create(q).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *QuestionRepository) FindByID(id uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc, id asc") }).
		Preload("Children.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		First(&q, id).Error
	return &q, err
}

func (r *QuestionRepository) FindByIDs(ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Where("id IN ?", ids).
		Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) List(f QuestionFilter) ([]model.Question, int64, error) {
	var questions []model.Question
	var total int64

	query := r.DB.Model(&model.Question{})
	if f.Part > 0 {
		query = query.Where("part = ?", f.Part)
	}
	if f.ParentID != nil {
		query = query.Where("parent_id = ?", *f.ParentID)
	} else if f.TopLevel {
		query = query.Where("parent_id IS NULL")
	}
	if f.Keyword != "" {
		like := "%" + f.Keyword + "%"
		query = query.Where("content LIKE ? OR passage LIKE ? OR topic LIKE ?", like, like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	err := query.Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Order("part asc, sort_order asc, id asc").
		Offset(offset).Limit(f.Limit).
		Find(&questions).Error
	return questions, total, err
}

// ListByPart 导出用，包含题组子题
func (r *QuestionRepository) ListByPart(part int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Preload("Children", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc, id asc") }).
		Preload("Children.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Where("part = ? AND parent_id IS NULL", part).
		Order("sort_order asc, id asc").
		Find(&questions).Error
	return questions, err
}

// Update 更新题目字段，并整体替换选项
func (r *QuestionRepository) Update(q *model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Answers", "Children").Save(q).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id = ?", q.ID).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		for i := range q.Answers {
			q.Answers[i].ID = 0
			q.Answers[i].QuestionID = q.ID
		}
		if len(q.Answers) > 0 {
			if err := tx.Create(&q.Answers).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete 删除题目，题组连同子题及其选项一起删除
func (r *QuestionRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		var childIDs []uint
		if err := tx.Model(&model.Question{}).Where("parent_id = ?", id).Pluck("id", &childIDs).Error; err != nil {
			return err
		}
		ids := append(childIDs, id)
		if err := tx.Where("question_id IN ?", ids).Delete(&model.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Where("question_id IN ?", ids).Delete(&model.TestContent{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.Question{}).Error
	})
}

func (r *QuestionRepository) UpdateMedia(id uint, field, url string) error {
	return r.DB.Model(&model.Question{}).Where("id = ?", id).Update(field, url).Error
}

func (r *QuestionRepository) UpdateTags(id uint, tags model.QuestionTags) error {
	return r.DB.Model(&model.Question{}).Where("id = ?", id).Updates(map[string]interface{}{
		"topic":          tags.Topic,
		"category":       tags.Category,
		"grammar_tag":    tags.GrammarTag,
		"vocabulary_tag": tags.VocabularyTag,
	}).Error
}

// ListUntagged 尚未打主题标签的可作答题目（不含题组父题）
func (r *QuestionRepository) ListUntagged(limit int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.
		Preload("Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		Where("is_group = ? AND (topic = '' OR topic IS NULL)", false).
		Order("id asc").
		Limit(limit).
		Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) CountUntagged() (int64, error) {
	var count int64
	err := r.DB.Model(&model.Question{}).
		Where("is_group = ? AND (topic = '' OR topic IS NULL)", false).
		Count(&count).Error
	return count, err
}
