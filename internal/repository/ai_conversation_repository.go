package repository

import (
	"sort"

	"toeic_backend/internal/model"

	"gorm.io/gorm"
)

type AIConversationRepository struct {
	DB *gorm.DB
}

func NewAIConversationRepository(db *gorm.DB) *AIConversationRepository {
	return &AIConversationRepository{DB: db}
}

func (r *AIConversationRepository) Create(turns ...*model.AIConversation) error {
	if len(turns) == 0 {
		return nil
	}
	return r.DB.Create(turns).Error
}

// RecentTurns 会话最近 limit 轮，按时间正序返回
func (r *AIConversationRepository) RecentTurns(memberID uint, sessionID string, limit int) ([]model.AIConversation, error) {
	var turns []model.AIConversation
	err := r.DB.Where("member_id = ? AND session_id = ?", memberID, sessionID).
		Order("id desc").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *AIConversationRepository) History(memberID uint, sessionID string) ([]model.AIConversation, error) {
	var turns []model.AIConversation
	err := r.DB.Where("member_id = ? AND session_id = ?", memberID, sessionID).
		Order("id asc").
		Find(&turns).Error
	return turns, err
}

// Sessions 会话列表，按最近活跃倒序；标题取会话第一条提问
func (r *AIConversationRepository) Sessions(memberID uint) ([]model.AISession, error) {
	var turns []model.AIConversation
	err := r.DB.Select("id", "session_id", "role", "content", "created_at").
		Where("member_id = ?", memberID).
		Order("id asc").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	var sessions []model.AISession
	for _, t := range turns {
		i, ok := index[t.SessionID]
		if !ok {
			i = len(sessions)
			index[t.SessionID] = i
			sessions = append(sessions, model.AISession{SessionID: t.SessionID})
		}
		s := &sessions[i]
		s.Turns++
		if t.CreatedAt.After(s.UpdatedAt) {
			s.UpdatedAt = t.CreatedAt
		}
		if s.Title == "" && t.Role == model.AIRoleUser {
			s.Title = truncateRunes(t.Content, 30)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (r *AIConversationRepository) DeleteSession(memberID uint, sessionID string) (int64, error) {
	tx := r.DB.Where("member_id = ? AND session_id = ?", memberID, sessionID).Delete(&model.AIConversation{})
	return tx.RowsAffected, tx.Error
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
