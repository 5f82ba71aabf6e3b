package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"toeic_backend/internal/model"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const maxCacheMessages = 50 // 每个会话缓存最近50条消息

type ChatRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewChatRepository(db *gorm.DB, rdb *redis.Client) *ChatRepository {
	return &ChatRepository{
		DB:    db,
		Redis: rdb,
		ctx:   context.Background(),
	}
}

func groupMembersKey(convID string) string {
	return fmt.Sprintf("chat:relation:group_members:%s", convID)
}

func memberGroupsKey(memberID uint) string {
	return fmt.Sprintf("chat:relation:member_groups:%d", memberID)
}

func (r *ChatRepository) invalidateRelations(convID string, memberIDs ...uint) {
	if r.Redis == nil {
		return
	}
	keys := []string{groupMembersKey(convID)}
	for _, id := range memberIDs {
		keys = append(keys, memberGroupsKey(id))
	}
	r.Redis.Del(r.ctx, keys...)
}

// CreateConversation 会话与初始成员在同一事务中写入
func (r *ChatRepository) CreateConversation(conv *model.Conversation) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Members.Member").Create(conv).Error
	})
	if err == nil {
		ids := make([]uint, 0, len(conv.Members))
		for _, m := range conv.Members {
			ids = append(ids, m.MemberID)
		}
		r.invalidateRelations(conv.ID, ids...)
	}
	return err
}

func (r *ChatRepository) GetConversation(id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Preload("Members.Member").First(&conv, "id = ?", id).Error
	return &conv, err
}

func (r *ChatRepository) GetMemberConversations(memberID uint, limit, offset int) ([]model.Conversation, int64, error) {
	var convs []model.Conversation
	var total int64

	db := r.DB.Model(&model.Conversation{}).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.member_id = ?", memberID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Members.Member").
		Order("conversations.updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&convs).Error
	return convs, total, err
}

func (r *ChatRepository) FindPrivateConversation(memberID1, memberID2 uint) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.DB.Model(&model.Conversation{}).
		Joins("JOIN conversation_members cm1 ON cm1.conversation_id = conversations.id").
		Joins("JOIN conversation_members cm2 ON cm2.conversation_id = conversations.id").
		Where("conversations.type = ?", model.ConversationPrivate).
		Where("cm1.member_id = ? AND cm2.member_id = ?", memberID1, memberID2).
		Preload("Members.Member").
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *ChatRepository) AddMember(member *model.ConversationMember) error {
	err := r.DB.Omit("Member").Create(member).Error
	if err == nil {
		r.invalidateRelations(member.ConversationID, member.MemberID)
	}
	return err
}

func (r *ChatRepository) RemoveMember(convID string, memberID uint) error {
	err := r.DB.Delete(&model.ConversationMember{}, "conversation_id = ? AND member_id = ?", convID, memberID).Error
	if err == nil {
		r.invalidateRelations(convID, memberID)
	}
	return err
}

func (r *ChatRepository) GetMember(convID string, memberID uint) (*model.ConversationMember, error) {
	var member model.ConversationMember
	err := r.DB.Where("conversation_id = ? AND member_id = ?", convID, memberID).First(&member).Error
	return &member, err
}

func (r *ChatRepository) GetConversationMembers(convID string, limit, offset int) ([]model.ConversationMember, int64, error) {
	var members []model.ConversationMember
	var total int64

	db := r.DB.Model(&model.ConversationMember{}).Where("conversation_id = ?", convID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Preload("Member").
		Order("role ASC, joined_at ASC").
		Limit(limit).Offset(offset).
		Find(&members).Error
	return members, total, err
}

func (r *ChatRepository) UpdateLastReadMessage(convID string, memberID uint, msgID string) error {
	var msg model.Message
	if err := r.DB.First(&msg, "id = ? AND conversation_id = ?", msgID, convID).Error; err != nil {
		return err
	}
	readTime := msg.CreatedAt.UTC()
	return r.DB.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND member_id = ?", convID, memberID).
		Updates(map[string]interface{}{
			"last_read_msg_id":   msgID,
			"last_read_msg_time": readTime,
		}).Error
}

// CountUnread 统计会员在会话中最后已读之后收到的他人消息数
func (r *ChatRepository) CountUnread(convID string, memberID uint, since *time.Time) (int64, error) {
	var count int64
	db := r.DB.Model(&model.Message{}).
		Where("conversation_id = ? AND (sender_id IS NULL OR sender_id <> ?)", convID, memberID)
	if since != nil {
		db = db.Where("created_at > ?", *since)
	}
	err := db.Count(&count).Error
	return count, err
}

func (r *ChatRepository) LastMessage(convID string) (*model.Message, error) {
	var msg model.Message
	err := r.DB.Where("conversation_id = ?", convID).Order("created_at DESC").First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func seqKey(convID string) string {
	return fmt.Sprintf("chat:seq:%s", convID)
}

// maxSeq 会话当前最大序号，没有消息时为 0
func (r *ChatRepository) maxSeq(tx *gorm.DB, convID string) (uint64, error) {
	var maxSeq *uint64
	if err := tx.Model(&model.Message{}).
		Select("MAX(seq_id)").
		Where("conversation_id = ?", convID).
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

// nextSeq 会话内连续序号，优先 Redis 原子递增；计数器缺失时先用库中最大序号初始化
func (r *ChatRepository) nextSeq(tx *gorm.DB, convID string) (uint64, error) {
	current, err := r.maxSeq(tx, convID)
	if err != nil {
		return 0, err
	}
	if r.Redis != nil {
		key := seqKey(convID)
		if err := r.Redis.SetNX(r.ctx, key, current, 0).Err(); err == nil {
			seq, err := r.Redis.Incr(r.ctx, key).Result()
			if err == nil && uint64(seq) > current {
				return uint64(seq), nil
			}
			if err == nil {
				// 计数器落后于库（如 Redis 故障期间走了库内序号），校正后继续
				r.Redis.Set(r.ctx, key, current+1, 0)
			}
		}
	}
	return current + 1, nil
}

func (r *ChatRepository) CreateMessage(msg *model.Message) error {
	if msg.ID == "" {
		msg.ID = model.GenerateUUID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		seq, err := r.nextSeq(tx, msg.ConversationID)
		if err != nil {
			return err
		}
		msg.SeqID = seq
		if err := tx.Omit("Sender").Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		return err
	}

	// 缓存与推送都需要发送者信息
	if msg.SenderID != nil && msg.Sender == nil {
		var sender model.Member
		if err := r.DB.First(&sender, *msg.SenderID).Error; err == nil {
			msg.Sender = &sender
		}
	}
	if r.Redis != nil {
		go r.cacheMessage(*msg)
	}
	return nil
}

func (r *ChatRepository) cacheMessage(msg model.Message) {
	key := fmt.Sprintf("chat:cache:%s", msg.ConversationID)
	data, _ := json.Marshal(msg)

	pipe := r.Redis.Pipeline()
	pipe.LPush(r.ctx, key, data)
	pipe.LTrim(r.ctx, key, 0, maxCacheMessages-1)
	pipe.Expire(r.ctx, key, 24*time.Hour)
	pipe.Exec(r.ctx)
}

// GetMessages 按时间倒序分页，beforeID 为空时第一页优先读 Redis 缓存
func (r *ChatRepository) GetMessages(convID string, limit int, beforeID string) ([]model.Message, error) {
	if beforeID == "" && r.Redis != nil {
		key := fmt.Sprintf("chat:cache:%s", convID)
		cached, err := r.Redis.LRange(r.ctx, key, 0, int64(limit-1)).Result()
		if err == nil && len(cached) >= limit {
			msgs := make([]model.Message, 0, len(cached))
			for _, item := range cached {
				var m model.Message
				if err := json.Unmarshal([]byte(item), &m); err == nil {
					msgs = append(msgs, m)
				}
			}
			if len(msgs) >= limit {
				return msgs, nil
			}
		}
	}

	var msgs []model.Message
	db := r.DB.Preload("Sender").Where("conversation_id = ?", convID)
	if beforeID != "" {
		var beforeMsg model.Message
		if err := r.DB.First(&beforeMsg, "id = ?", beforeID).Error; err == nil {
			db = db.Where("seq_id < ?", beforeMsg.SeqID)
		}
	}
	err := db.Order("seq_id DESC, created_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

func (r *ChatRepository) GetGroupMemberIDs(convID string) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Pluck("member_id", &ids).Error
	return ids, err
}

// GetGroupMemberIDsCached 会话成员 ID（带缓存）
func (r *ChatRepository) GetGroupMemberIDsCached(convID string) ([]uint, error) {
	if r.Redis == nil {
		return r.GetGroupMemberIDs(convID)
	}

	key := groupMembersKey(convID)
	cached, err := r.Redis.SMembers(r.ctx, key).Result()
	if err == nil && len(cached) > 0 {
		ids := make([]uint, 0, len(cached))
		for _, s := range cached {
			if id, err := strconv.ParseUint(s, 10, 64); err == nil && id > 0 {
				ids = append(ids, uint(id))
			}
		}
		return ids, nil
	}

	ids, err := r.GetGroupMemberIDs(convID)
	if err == nil && len(ids) > 0 {
		pipe := r.Redis.Pipeline()
		for _, id := range ids {
			pipe.SAdd(r.ctx, key, id)
		}
		pipe.Expire(r.ctx, key, 24*time.Hour)
		pipe.Exec(r.ctx)
	}
	return ids, err
}

func (r *ChatRepository) GetMemberGroupIDs(memberID uint) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.ConversationMember{}).
		Where("member_id = ?", memberID).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (r *ChatRepository) DeleteConversation(convID string) error {
	var memberIDs []uint
	r.DB.Model(&model.ConversationMember{}).Where("conversation_id = ?", convID).Pluck("member_id", &memberIDs)

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", convID).Delete(&model.ConversationMember{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", convID).Delete(&model.Conversation{}).Error
	})
	if err == nil {
		r.invalidateRelations(convID, memberIDs...)
	}
	return err
}
