package model

import "time"

const (
	AIRoleUser  = "user"
	AIRoleModel = "model"
)

// AIConversation AI 助教的对话记录（ConversationAI）
type AIConversation struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	MemberID  uint      `gorm:"index:idx_member_session;not null" json:"memberId"`
	SessionID string    `gorm:"index:idx_member_session;type:varchar(36);not null" json:"sessionId"`
	Role      string    `gorm:"size:10;not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (AIConversation) TableName() string {
	return "ai_conversations"
}

// AISession 会话列表项
type AISession struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Turns     int64     `json:"turns"`
	UpdatedAt time.Time `json:"updatedAt"`
}
