package repository

import (
	"time"

	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

// PracticeRepository 自适应练习选题所需的数据访问
type PracticeRepository struct {
	DB *gorm.DB
}

func NewPracticeRepository(db *gorm.DB) *PracticeRepository {
	return &PracticeRepository{DB: db}
}

// RecentErrors 会员在某部分最近的错题记录（含已解决），用于错误模式加权
func (r *PracticeRepository) RecentErrors(memberID uint, part int, limit int) ([]model.UserError, error) {
	var errs []model.UserError
	err := r.DB.Where("member_id = ? AND part = ?", memberID, part).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&errs).Error
	return errs, err
}

// UnresolvedErrorQuestionIDs 未解决错题的题目 ID，最近的在前，已去重
func (r *PracticeRepository) UnresolvedErrorQuestionIDs(memberID uint, part int) ([]uint, error) {
	var errs []model.UserError
	err := r.DB.Select("question_id", "created_at", "id").
		Where("member_id = ? AND part = ? AND resolved = ?", memberID, part, false).
		Order("created_at desc, id desc").
		Find(&errs).Error
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(errs))
	ids := make([]uint, 0, len(errs))
	for _, e := range errs {
		if !seen[e.QuestionID] {
			seen[e.QuestionID] = true
			ids = append(ids, e.QuestionID)
		}
	}
	return ids, nil
}

// RecentAnsweredIDs 会员自 since 以来作答过的该部分题目
func (r *PracticeRepository) RecentAnsweredIDs(memberID uint, part int, since time.Time) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.UserAnswer{}).
		Joins("JOIN questions ON questions.id = user_answers.question_id").
		Where("user_answers.member_id = ? AND questions.part = ? AND user_answers.answered_at >= ?", memberID, part, since).
		Distinct().
		Pluck("user_answers.question_id", &ids).Error
	return ids, err
}

// PartPool 加载某部分全部题目（不含选项），供选题器组装作答单元
func (r *PracticeRepository) PartPool(part int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Select("id", "part", "parent_id", "is_group", "sort_order",
		"topic", "category", "grammar_tag", "vocabulary_tag", "difficulty").
		Where("part = ?", part).
		Order("sort_order asc, id asc").
		Find(&questions).Error
	return questions, err
}

// CreateSession 练习卷、作答记录与题目关联在同一事务中写入
func (r *PracticeRepository) CreateSession(test *model.Test, result *model.TestResult, questionIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Contents").Create(test).Error; err != nil {
			return err
		}
		if err := createContents(tx, test.ID, questionIDs); err != nil {
			return err
		}
		result.TestID = test.ID
		return tx.Omit("Test", "Answers").Create(result).Error
	})
}

// RecentErrorsAllParts 不区分部分的最近错题，AI 助教分析薄弱点用
func (r *PracticeRepository) RecentErrorsAllParts(memberID uint, limit int) ([]model.UserError, error) {
	var errs []model.UserError
	err := r.DB.Where("member_id = ?", memberID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&errs).Error
	return errs, err
}

// CountByPart 各部分可作答的题目数（不含题组父题）
func (r *PracticeRepository) CountByPart() (map[int]int64, error) {
	type row struct {
		Part  int
		Count int64
	}
	var rows []row
	err := r.DB.Model(&model.Question{}).
		Select("part, COUNT(*) AS count").
		Where("is_group = ?", false).
		Group("part").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[int]int64, len(rows))
	for _, r := range rows {
		result[r.Part] = r.Count
	}
	return result, nil
}
