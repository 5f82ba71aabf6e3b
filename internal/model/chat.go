package model

import (
	"time"
)

const (
	ConversationPrivate = "private"
	ConversationGroup   = "group"

	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageSystem = "system"
)

// Conversation 会员聊天会话（私聊、群聊）
type Conversation struct {
	UUIDBase
	Type      string               `gorm:"size:20;default:'group'" json:"type"`
	Name      string               `gorm:"size:100" json:"name"`
	Avatar    string               `gorm:"size:255" json:"avatar"`
	CreatorID uint                 `gorm:"index" json:"creatorId"`
	Members   []ConversationMember `gorm:"foreignKey:ConversationID" json:"members"`
	MemberIDs []uint               `gorm:"-" json:"memberIds"`
	// 列表展示用，不落库
	LastMessage *Message `gorm:"-" json:"lastMessage,omitempty"`
	UnreadCount int64    `gorm:"-" json:"unreadCount"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type ConversationMember struct {
	ConversationID  string     `gorm:"primaryKey;type:varchar(36)" json:"conversationId"`
	MemberID        uint       `gorm:"primaryKey;index" json:"memberId"`
	Member          Member     `gorm:"foreignKey:MemberID" json:"member"`
	Role            string     `gorm:"size:20;default:'member'" json:"role"`
	LastReadMsgID   string     `gorm:"type:varchar(36);default:''" json:"lastReadMsgId"`
	LastReadMsgTime *time.Time `json:"lastReadMsgTime"`
	JoinedAt        time.Time  `gorm:"autoCreateTime" json:"joinedAt"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

type Message struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"index:idx_conv_created;type:varchar(36);not null" json:"conversationId"`
	CreatedAt      time.Time `gorm:"index:idx_conv_created" json:"createdAt"`
	SenderID       *uint     `gorm:"index" json:"senderId"`
	Sender         *Member   `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Type           string    `gorm:"size:20;default:'text'" json:"type"`
	Content        string    `gorm:"type:text" json:"content"`
	ClientMsgID    string    `gorm:"size:50;index" json:"clientMsgId"`
	SeqID          uint64    `gorm:"index" json:"seqId"`
}

func (Message) TableName() string {
	return "messages"
}
