package repository

import (
	"context"
	"time"

	"toeic_backend/internal/model"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

const irtExportQuery = `
SELECT ua.member_id, ua.question_id, q.part, ua.is_correct
FROM user_answers ua
JOIN questions q ON q.id = ua.question_id
JOIN test_results tr ON tr.id = ua.result_id
WHERE tr.status = 'completed'
  AND q.deleted_at IS NULL
  AND tr.deleted_at IS NULL
ORDER BY ua.member_id, ua.question_id`

// IRTRepository 作答导出走 sqlx 流式读取，参数回写走 gorm 事务
type IRTRepository struct {
	DB  *gorm.DB
	SQL *sqlx.DB
}

func NewIRTRepository(db *gorm.DB) (*IRTRepository, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &IRTRepository{
		DB:  db,
		SQL: sqlx.NewDb(sqlDB, sqlxDriverName(db.Dialector.Name())),
	}, nil
}

func sqlxDriverName(dialect string) string {
	switch dialect {
	case "postgres":
		return "pgx"
	case "sqlite":
		return "sqlite3"
	default:
		return dialect
	}
}

// ExportResponses 按行回调已完成作答中的每一条对错记录
func (r *IRTRepository) ExportResponses(ctx context.Context, fn func(model.IRTResponse) error) (int, error) {
	rows, err := r.SQL.QueryxContext(ctx, irtExportQuery)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var resp model.IRTResponse
		if err := rows.StructScan(&resp); err != nil {
			return count, err
		}
		if err := fn(resp); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

// ApplyCalibration 在一个事务中回写题目参数与会员能力值，返回实际更新的行数
func (r *IRTRepository) ApplyCalibration(items []model.IRTItemParams, abilities []model.IRTAbility) (int, int, error) {
	itemsUpdated, membersUpdated := 0, 0
	now := time.Now()

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			res := tx.Model(&model.Question{}).Where("id = ?", item.QuestionID).Updates(map[string]interface{}{
				"difficulty":     item.Difficulty,
				"discrimination": item.Discrimination,
				"guessing":       item.Guessing,
				"quality":        item.Quality,
				"calibrated_at":  now,
			})
			if res.Error != nil {
				return res.Error
			}
			itemsUpdated += int(res.RowsAffected)
		}
		for _, a := range abilities {
			res := tx.Model(&model.Member{}).Where("id = ?", a.MemberID).Updates(map[string]interface{}{
				"irt_ability":        a.Theta,
				"ability_updated_at": now,
			})
			if res.Error != nil {
				return res.Error
			}
			membersUpdated += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return itemsUpdated, membersUpdated, nil
}

// UpdateGroupDifficulty 题组父题难度取子题均值，便于列表展示
func (r *IRTRepository) UpdateGroupDifficulty() error {
	var groups []model.Question
	if err := r.DB.Select("id").Where("is_group = ?", true).Find(&groups).Error; err != nil {
		return err
	}
	for _, g := range groups {
		var avg *float64
		if err := r.DB.Model(&model.Question{}).
			Select("AVG(difficulty)").
			Where("parent_id = ? AND difficulty IS NOT NULL", g.ID).
			Scan(&avg).Error; err != nil {
			return err
		}
		if avg == nil {
			continue
		}
		if err := r.DB.Model(&model.Question{}).Where("id = ?", g.ID).Update("difficulty", *avg).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *IRTRepository) CreateRun(run *model.IRTRun) error {
	return r.DB.Create(run).Error
}

func (r *IRTRepository) FinishRun(run *model.IRTRun) error {
	now := time.Now()
	run.FinishedAt = &now
	return r.DB.Save(run).Error
}

func (r *IRTRepository) ListRuns(page, limit int) ([]model.IRTRun, int64, error) {
	var runs []model.IRTRun
	var total int64
	query := r.DB.Model(&model.IRTRun{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("id desc").Offset((page - 1) * limit).Limit(limit).Find(&runs).Error
	return runs, total, err
}

func (r *IRTRepository) LatestRun() (*model.IRTRun, error) {
	var run model.IRTRun
	err := r.DB.Order("id desc").First(&run).Error
	return &run, err
}
