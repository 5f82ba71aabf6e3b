package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	chatRoleAdmin  = "admin"
	chatRoleMember = "member"
)

type ChatService struct {
	ChatRepo   *repository.ChatRepository
	MemberRepo *repository.MemberRepository
	Storage    *StorageService
	Hub        *ChatHub
}

func NewChatService(chatRepo *repository.ChatRepository, memberRepo *repository.MemberRepository, storage *StorageService, hub *ChatHub) *ChatService {
	return &ChatService{ChatRepo: chatRepo, MemberRepo: memberRepo, Storage: storage, Hub: hub}
}

type ConversationPage struct {
	Items []model.Conversation `json:"items"`
	Total int64                `json:"total"`
}

func (s *ChatService) memberName(id uint) string {
	m, err := s.MemberRepo.FindByID(id)
	if err != nil {
		return fmt.Sprintf("#%d", id)
	}
	return m.FullName
}

// requireMember 只有会话成员可以读写
func (s *ChatService) requireMember(convID string, memberID uint) (*model.ConversationMember, error) {
	if _, err := s.ChatRepo.GetConversation(convID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrConversationNotFound
		}
		return nil, err
	}
	m, err := s.ChatRepo.GetMember(convID, memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNotConversationMember
		}
		return nil, err
	}
	return m, nil
}

func (s *ChatService) push(convID string, msg WSMessage) {
	if s.Hub == nil {
		return
	}
	ids, err := s.ChatRepo.GetGroupMemberIDsCached(convID)
	if err != nil {
		logger.Log.Warn("Failed to load conversation members", zap.String("conversationId", convID), zap.Error(err))
		return
	}
	s.Hub.PushToMembers(ids, msg)
}

func (s *ChatService) systemMessage(convID, content string) {
	msg := &model.Message{
		ConversationID: convID,
		Type:           model.MessageSystem,
		Content:        content,
	}
	if err := s.ChatRepo.CreateMessage(msg); err != nil {
		logger.Log.Warn("Failed to create system message", zap.String("conversationId", convID), zap.Error(err))
		return
	}
	s.push(convID, WSMessage{Type: EventNewMessage, Data: msg})
}

func (s *ChatService) CreateGroup(creatorID uint, name string, memberIDs []uint) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name required", util.ErrInvalidChatTarget)
	}

	seen := map[uint]bool{creatorID: true}
	ids := []uint{}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		found, err := s.MemberRepo.FindByIDs(ids)
		if err != nil {
			return nil, err
		}
		if len(found) != len(ids) {
			return nil, util.ErrMemberNotFound
		}
	}

	conv := &model.Conversation{
		Type:      model.ConversationGroup,
		Name:      name,
		CreatorID: creatorID,
		Members:   []model.ConversationMember{{MemberID: creatorID, Role: chatRoleAdmin}},
	}
	for _, id := range ids {
		conv.Members = append(conv.Members, model.ConversationMember{MemberID: id, Role: chatRoleMember})
	}
	if err := s.ChatRepo.CreateConversation(conv); err != nil {
		return nil, err
	}

	s.systemMessage(conv.ID, fmt.Sprintf("%s 创建了群聊", s.memberName(creatorID)))
	return s.ChatRepo.GetConversation(conv.ID)
}

func (s *ChatService) GetOrCreatePrivate(memberID, peerID uint) (*model.Conversation, error) {
	if memberID == peerID {
		return nil, fmt.Errorf("%w: cannot chat with yourself", util.ErrInvalidChatTarget)
	}
	if _, err := s.MemberRepo.FindByID(peerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrMemberNotFound
		}
		return nil, err
	}

	conv, err := s.ChatRepo.FindPrivateConversation(memberID, peerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = &model.Conversation{
		Type:      model.ConversationPrivate,
		CreatorID: memberID,
		Members: []model.ConversationMember{
			{MemberID: memberID, Role: chatRoleMember},
			{MemberID: peerID, Role: chatRoleMember},
		},
	}
	if err := s.ChatRepo.CreateConversation(conv); err != nil {
		return nil, err
	}
	return s.ChatRepo.GetConversation(conv.ID)
}

// ListConversations 附带最后一条消息与未读数
func (s *ChatService) ListConversations(memberID uint, page, limit int) (*ConversationPage, error) {
	page, limit = util.NormalizePage(page, limit)
	convs, total, err := s.ChatRepo.GetMemberConversations(memberID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	for i := range convs {
		conv := &convs[i]
		var lastRead *model.ConversationMember
		for j := range conv.Members {
			conv.MemberIDs = append(conv.MemberIDs, conv.Members[j].MemberID)
			if conv.Members[j].MemberID == memberID {
				lastRead = &conv.Members[j]
			}
		}
		if last, err := s.ChatRepo.LastMessage(conv.ID); err == nil {
			conv.LastMessage = last
		}
		if lastRead != nil {
			if n, err := s.ChatRepo.CountUnread(conv.ID, memberID, lastRead.LastReadMsgTime); err == nil {
				conv.UnreadCount = n
			}
		}
	}
	return &ConversationPage{Items: convs, Total: total}, nil
}

func (s *ChatService) SendMessage(memberID uint, convID, msgType, content, clientMsgID string) (*model.Message, error) {
	if _, err := s.requireMember(convID, memberID); err != nil {
		return nil, err
	}
	switch msgType {
	case "":
		msgType = model.MessageText
	case model.MessageText, model.MessageImage, model.MessageFile:
	default:
		return nil, fmt.Errorf("%w: unsupported message type %q", util.ErrInvalidChatTarget, msgType)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: empty message", util.ErrInvalidChatTarget)
	}

	sender := memberID
	msg := &model.Message{
		ConversationID: convID,
		SenderID:       &sender,
		Type:           msgType,
		Content:        content,
		ClientMsgID:    clientMsgID,
	}
	if err := s.ChatRepo.CreateMessage(msg); err != nil {
		return nil, err
	}

	s.push(convID, WSMessage{Type: EventNewMessage, Data: msg})
	return msg, nil
}

func (s *ChatService) History(memberID uint, convID string, limit int, beforeID string) ([]model.Message, error) {
	if _, err := s.requireMember(convID, memberID); err != nil {
		return nil, err
	}
	_, limit = util.NormalizePage(1, limit)
	return s.ChatRepo.GetMessages(convID, limit, beforeID)
}

func (s *ChatService) MarkRead(memberID uint, convID, msgID string) error {
	if _, err := s.requireMember(convID, memberID); err != nil {
		return err
	}
	if err := s.ChatRepo.UpdateLastReadMessage(convID, memberID, msgID); err != nil {
		return err
	}
	s.push(convID, WSMessage{
		Type: EventReadReceipt,
		Data: map[string]interface{}{"conversationId": convID, "memberId": memberID, "messageId": msgID},
	})
	return nil
}

func (s *ChatService) ListMembers(memberID uint, convID string, page, limit int) ([]model.ConversationMember, int64, error) {
	if _, err := s.requireMember(convID, memberID); err != nil {
		return nil, 0, err
	}
	page, limit = util.NormalizePage(page, limit)
	return s.ChatRepo.GetConversationMembers(convID, limit, (page-1)*limit)
}

// InviteMember 群管理员邀请会员入群
func (s *ChatService) InviteMember(adminID uint, convID string, targetID uint) error {
	conv, err := s.ChatRepo.GetConversation(convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrConversationNotFound
		}
		return err
	}
	if conv.Type != model.ConversationGroup {
		return util.ErrNotGroupConversation
	}
	caller, err := s.requireMember(convID, adminID)
	if err != nil {
		return err
	}
	if caller.Role != chatRoleAdmin && conv.CreatorID != adminID {
		return util.ErrPermissionDenied
	}
	if _, err := s.ChatRepo.GetMember(convID, targetID); err == nil {
		return nil
	}
	if _, err := s.MemberRepo.FindByID(targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrMemberNotFound
		}
		return err
	}

	if err := s.ChatRepo.AddMember(&model.ConversationMember{ConversationID: convID, MemberID: targetID, Role: chatRoleMember}); err != nil {
		return err
	}
	s.systemMessage(convID, fmt.Sprintf("%s 加入了群聊", s.memberName(targetID)))
	s.push(convID, WSMessage{Type: EventMemberJoined, Data: map[string]interface{}{"conversationId": convID, "memberId": targetID}})
	return nil
}

// LeaveGroup 最后一名成员离开时删除会话
func (s *ChatService) LeaveGroup(memberID uint, convID string) error {
	conv, err := s.ChatRepo.GetConversation(convID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrConversationNotFound
		}
		return err
	}
	if conv.Type != model.ConversationGroup {
		return util.ErrNotGroupConversation
	}
	if _, err := s.requireMember(convID, memberID); err != nil {
		return err
	}

	if len(conv.Members) <= 1 {
		return s.ChatRepo.DeleteConversation(convID)
	}
	if err := s.ChatRepo.RemoveMember(convID, memberID); err != nil {
		return err
	}
	s.systemMessage(convID, fmt.Sprintf("%s 退出了群聊", s.memberName(memberID)))
	s.push(convID, WSMessage{Type: EventMemberLeft, Data: map[string]interface{}{"conversationId": convID, "memberId": memberID}})
	return nil
}

// UploadFile 上传附件并以图片或文件消息发送
func (s *ChatService) UploadFile(ctx context.Context, memberID uint, convID string, fh *multipart.FileHeader) (*model.Message, error) {
	if _, err := s.requireMember(convID, memberID); err != nil {
		return nil, err
	}
	url, msgType, err := s.Storage.SaveChatFile(ctx, convID, fh)
	if err != nil {
		return nil, err
	}
	return s.SendMessage(memberID, convID, msgType, url, "")
}
