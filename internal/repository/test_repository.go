package repository

import (
	"time"

	"toeic_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TestRepository struct {
	DB *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{DB: db}
}

// CreateWithContents 试卷与题目关联在同一事务中写入
func (r *TestRepository) CreateWithContents(test *model.Test, questionIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Contents").Create(test).Error; err != nil {
			return err
		}
		return createContents(tx, test.ID, questionIDs)
	})
}

func createContents(tx *gorm.DB, testID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}
	contents := make([]model.TestContent, len(questionIDs))
	for i, qid := range questionIDs {
		contents[i] = model.TestContent{TestID: testID, QuestionID: qid, SortOrder: i + 1}
	}
	return tx.Create(&contents).Error
}

func (r *TestRepository) ReplaceContents(testID uint, questionIDs []uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_id = ?", testID).Delete(&model.TestContent{}).Error; err != nil {
			return err
		}
		return createContents(tx, testID, questionIDs)
	})
}

func (r *TestRepository) FindByID(id uint) (*model.Test, error) {
	var test model.Test
	err := r.DB.First(&test, id).Error
	return &test, err
}

// FindWithQuestions 加载试卷题目（含选项与题组子题），按试卷顺序排列
func (r *TestRepository) FindWithQuestions(id uint) (*model.Test, error) {
	var test model.Test
	err := r.DB.
		Preload("Contents", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order asc") }).
		Preload("Contents.Question").
		Preload("Contents.Question.Answers", func(db *gorm.DB) *gorm.DB { return db.Order("label asc") }).
		First(&test, id).Error
	return &test, err
}

func (r *TestRepository) Update(test *model.Test) error {
	return r.DB.Omit("Contents").Save(test).Error
}

func (r *TestRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_id = ?", id).Delete(&model.TestContent{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Test{}, id).Error
	})
}

func (r *TestRepository) List(testType string, part int, publishedOnly bool, page, limit int) ([]model.Test, int64, error) {
	var tests []model.Test
	var total int64

	query := r.DB.Model(&model.Test{})
	if testType != "" {
		query = query.Where("type = ?", testType)
	} else {
		query = query.Where("type <> ?", model.TestTypePractice)
	}
	if part > 0 {
		query = query.Where("part = ?", part)
	}
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&tests).Error
	return tests, total, err
}

func (r *TestRepository) QuestionIDs(testID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.TestContent{}).
		Where("test_id = ?", testID).
		Order("sort_order asc").
		Pluck("question_id", &ids).Error
	return ids, err
}

func (r *TestRepository) CreateResult(result *model.TestResult) error {
	return r.DB.Omit("Test", "Answers").Create(result).Error
}

func (r *TestRepository) FindResult(id uint) (*model.TestResult, error) {
	var result model.TestResult
	err := r.DB.Preload("Test").Preload("Answers").First(&result, id).Error
	return &result, err
}

func (r *TestRepository) ListResults(memberID uint, status string, page, limit int) ([]model.TestResult, int64, error) {
	var results []model.TestResult
	var total int64

	query := r.DB.Model(&model.TestResult{}).Where("member_id = ?", memberID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Preload("Test").Order("started_at desc").Offset(offset).Limit(limit).Find(&results).Error
	return results, total, err
}

// SaveAnswers 按 (result_id, question_id) 幂等写入，重复作答覆盖旧选项
func (r *TestRepository) SaveAnswers(answers []model.UserAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "result_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"answer_id", "is_correct", "answered_at"}),
	}).Create(&answers).Error
}

func (r *TestRepository) ListAnswers(resultID uint) ([]model.UserAnswer, error) {
	var answers []model.UserAnswer
	err := r.DB.Where("result_id = ?", resultID).Find(&answers).Error
	return answers, err
}

// CompleteResult 仅在状态仍为 in_progress 时写入成绩，返回是否更新成功
func (r *TestRepository) CompleteResult(result *model.TestResult) (bool, error) {
	now := time.Now()
	tx := r.DB.Model(&model.TestResult{}).
		Where("id = ? AND status = ?", result.ID, model.ResultInProgress).
		Updates(map[string]interface{}{
			"status":          model.ResultCompleted,
			"completed_at":    now,
			"correct_count":   result.CorrectCount,
			"total_count":     result.TotalCount,
			"listening_score": result.ListeningScore,
			"reading_score":   result.ReadingScore,
			"total_score":     result.TotalScore,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return false, nil
	}
	result.Status = model.ResultCompleted
	result.CompletedAt = &now
	return true, nil
}

func (r *TestRepository) CreateErrors(errs []model.UserError) error {
	if len(errs) == 0 {
		return nil
	}
	return r.DB.Create(&errs).Error
}

// ResolveErrors 会员答对后将对应的历史错题标记为已解决
func (r *TestRepository) ResolveErrors(memberID uint, questionIDs []uint) (int64, error) {
	if len(questionIDs) == 0 {
		return 0, nil
	}
	tx := r.DB.Model(&model.UserError{}).
		Where("member_id = ? AND resolved = ? AND question_id IN ?", memberID, false, questionIDs).
		Update("resolved", true)
	return tx.RowsAffected, tx.Error
}
