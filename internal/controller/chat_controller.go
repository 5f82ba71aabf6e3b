package controller

import (
	"strconv"

	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 单个聊天附件上限
const maxChatFileSize = 20 << 20

// ChatController 会员聊天相关的HTTP请求
type ChatController struct {
	ChatService *service.ChatService
	Hub         *service.ChatHub
}

// CreateGroupRequest 创建群聊请求
type CreateGroupRequest struct {
	Name      string `json:"name" binding:"required,max=100" example:"Part 7 冲刺小组"`
	MemberIDs []uint `json:"memberIds" swaggertype:"array,number" example:"1,2,3"`
}

// CreatePrivateChatRequest 创建私聊请求
type CreatePrivateChatRequest struct {
	TargetMemberID uint `json:"targetMemberId" binding:"required" example:"2"`
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	Type        string `json:"type" binding:"omitempty,oneof=text image file" example:"text"`
	Content     string `json:"content" binding:"required" example:"这道题怎么做？"`
	ClientMsgID string `json:"clientMsgId" example:"uuid-123"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId" binding:"required"`
}

type InviteMemberRequest struct {
	MemberID uint `json:"memberId" binding:"required"`
}

func NewChatController(chatService *service.ChatService, hub *service.ChatHub) *ChatController {
	return &ChatController{ChatService: chatService, Hub: hub}
}

// HandleWS godoc
// @Summary WebSocket 连接
// @Description 建立 WebSocket 连接以接收实时消息，token 通过 query 传入
// @Tags 会员聊天
// @Security ApiKeyAuth
// @Param   token query string true "JWT Token"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/chat/ws [get]
func (ctrl *ChatController) HandleWS(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	service.ServeWs(ctrl.Hub, c.Writer, c.Request, claims.AccountID)
}

// CreateGroup godoc
// @Summary 创建群聊
// @Tags 会员聊天
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   request body CreateGroupRequest true "创建群聊请求"
// @Success 200 {object} util.Response{data=model.Conversation} "成功"
// @Failure 400 {object} util.Response "参数错误"
// @Router /api/chat/groups [post]
func (ctrl *ChatController) CreateGroup(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	conv, err := ctrl.ChatService.CreateGroup(claims.AccountID, req.Name, req.MemberIDs)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, conv)
}

// CreatePrivateChat godoc
// @Summary 创建或获取私聊
// @Description 已存在则返回现有会话
// @Tags 会员聊天
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   request body CreatePrivateChatRequest true "创建私聊请求"
// @Success 200 {object} util.Response{data=model.Conversation} "成功"
// @Router /api/chat/privates [post]
func (ctrl *ChatController) CreatePrivateChat(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req CreatePrivateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	conv, err := ctrl.ChatService.GetOrCreatePrivate(claims.AccountID, req.TargetMemberID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, conv)
}

// GetConversations godoc
// @Summary 会话列表
// @Description 按最近活跃排序，附带最后一条消息与未读数
// @Tags 会员聊天
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=service.ConversationPage} "成功"
// @Router /api/chat/conversations [get]
func (ctrl *ChatController) GetConversations(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	page, limit := util.GetPage(c)
	res, err := ctrl.ChatService.ListConversations(claims.AccountID, page, limit)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, res)
}

// SendMessage godoc
// @Summary 发送消息
// @Tags 会员聊天
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   request body SendMessageRequest true "消息"
// @Success 200 {object} util.Response{data=model.Message} "成功"
// @Failure 403 {object} util.Response "不是会话成员"
// @Router /api/chat/conversations/{id}/messages [post]
func (ctrl *ChatController) SendMessage(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	msg, err := ctrl.ChatService.SendMessage(claims.AccountID, c.Param("id"), req.Type, req.Content, req.ClientMsgID)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, msg)
}

// GetHistory godoc
// @Summary 历史消息
// @Description 按序号倒序分页，before 为上一页最早一条消息ID
// @Tags 会员聊天
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   before query string false "消息ID"
// @Param   limit query int false "数量"
// @Success 200 {object} util.Response{data=[]model.Message} "成功"
// @Router /api/chat/conversations/{id}/messages [get]
func (ctrl *ChatController) GetHistory(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))

	msgs, err := ctrl.ChatService.History(claims.AccountID, c.Param("id"), limit, c.Query("before"))
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, msgs)
}

// MarkRead godoc
// @Summary 标记已读
// @Tags 会员聊天
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   request body MarkReadRequest true "最后已读消息"
// @Success 200 {object} util.Response "成功"
// @Router /api/chat/conversations/{id}/read [put]
func (ctrl *ChatController) MarkRead(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	if err := ctrl.ChatService.MarkRead(claims.AccountID, c.Param("id"), req.MessageID); err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, nil)
}

// GetMembers godoc
// @Summary 会话成员
// @Tags 会员聊天
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/chat/conversations/{id}/members [get]
func (ctrl *ChatController) GetMembers(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	page, limit := util.GetPage(c)
	members, total, err := ctrl.ChatService.ListMembers(claims.AccountID, c.Param("id"), page, limit)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	for i := range members {
		members[i].Member.Password = ""
	}
	util.Success(c, util.PageResponse{List: members, Total: total, Page: page, Limit: limit})
}

// InviteMember godoc
// @Summary 邀请入群
// @Description 仅群主或群管理员可邀请
// @Tags 会员聊天
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   request body InviteMemberRequest true "会员"
// @Success 200 {object} util.Response "成功"
// @Router /api/chat/conversations/{id}/members [post]
func (ctrl *ChatController) InviteMember(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	var req InviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}
	if err := ctrl.ChatService.InviteMember(claims.AccountID, c.Param("id"), req.MemberID); err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, nil)
}

// LeaveGroup godoc
// @Summary 退出群聊
// @Tags 会员聊天
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/chat/conversations/{id}/leave [post]
func (ctrl *ChatController) LeaveGroup(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	if err := ctrl.ChatService.LeaveGroup(claims.AccountID, c.Param("id")); err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, nil)
}

// UploadFile godoc
// @Summary 发送文件
// @Description 上传附件并作为图片或文件消息发送
// @Tags 会员聊天
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Param   file formData file true "附件"
// @Success 200 {object} util.Response{data=model.Message} "成功"
// @Router /api/chat/conversations/{id}/files [post]
func (ctrl *ChatController) UploadFile(c *gin.Context) {
	claims := util.GetUserFromContext(c)
	fh, err := c.FormFile("file")
	if err != nil {
		util.BadRequest(c, "请选择要上传的文件")
		return
	}
	if fh.Size > maxChatFileSize {
		util.BadRequest(c, "文件过大")
		return
	}

	msg, err := ctrl.ChatService.UploadFile(c.Request.Context(), claims.AccountID, c.Param("id"), fh)
	if err != nil {
		util.HandleError(c, err)
		return
	}
	util.Success(c, msg)
}

// GetOnlineStatus godoc
// @Summary 会员在线状态
// @Tags 会员聊天
// @Produce  json
// @Security ApiKeyAuth
// @Param   memberId path int true "会员ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/chat/online/{memberId} [get]
func (ctrl *ChatController) GetOnlineStatus(c *gin.Context) {
	id, ok := util.ParseIDParam(c, "memberId")
	if !ok {
		util.BadRequest(c, "无效的会员ID")
		return
	}
	util.Success(c, gin.H{"memberId": id, "online": ctrl.Hub.IsMemberOnline(id)})
}
