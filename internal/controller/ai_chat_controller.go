package controller

import (
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 流式对话出错时推给客户端的固定提示，具体原因只写日志
const aiStreamErrorMessage = "AI 服务暂时不可用，请稍后重试"

type AIChatController struct {
	AIChatService *service.AIChatService
}

func NewAIChatController(aiChatService *service.AIChatService) *AIChatController {
	return &AIChatController{AIChatService: aiChatService}
}

// swagger:model AIChatRequest
type AIChatRequest struct {
	SessionID string `json:"sessionId" binding:"omitempty,max=36"`
	Message   string `json:"message" binding:"required,max=4000"`
}

type AIChatResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
}

type ExplainRequest struct {
	QuestionID uint  `json:"questionId" binding:"required"`
	AnswerID   *uint `json:"answerId"`
}

// Send godoc
// @Summary AI 助教对话
// @Description sessionId 为空时新建会话；系统提示中带有会员能力值与近期弱项
// @Tags AI 助教
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   request body AIChatRequest true "消息"
// @Success 200 {object} util.Response{data=AIChatResponse} "成功"
// @Failure 503 {object} util.Response "AI 服务未配置"
// @Router /api/ai/chat [post]
func (c *AIChatController) Send(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req AIChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	sessionID, reply, err := c.AIChatService.Send(ctx.Request.Context(), claims.AccountID, req.SessionID, req.Message)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, AIChatResponse{SessionID: sessionID, Reply: reply})
}

// Stream godoc
// @Summary AI 助教流式对话
// @Description SSE 推送：session 事件给出会话ID，message 事件为增量内容，end 表示结束
// @Tags AI 助教
// @Accept  json
// @Produce  text/event-stream
// @Security ApiKeyAuth
// @Param   request body AIChatRequest true "消息"
// @Success 200 {string} string "SSE"
// @Router /api/ai/chat/stream [post]
func (c *AIChatController) Stream(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req AIChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if !c.AIChatService.AI.Configured() {
		util.HandleError(ctx, util.ErrAIUnavailable)
		return
	}

	sessionID, stream, errChan, err := c.AIChatService.Stream(ctx.Request.Context(), claims.AccountID, req.SessionID, req.Message)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	ctx.SSEvent("session", sessionID)
	ctx.Writer.Flush()

	for content := range stream {
		ctx.SSEvent("message", content)
		ctx.Writer.Flush()
	}

	if err := <-errChan; err != nil {
		logger.Log.Warn("AI stream aborted", zap.Uint("memberId", claims.AccountID), zap.String("sessionId", sessionID), zap.Error(err))
		ctx.SSEvent("error", aiStreamErrorMessage)
		ctx.Writer.Flush()
	}

	ctx.SSEvent("end", "done")
	ctx.Writer.Flush()
}

// ListSessions godoc
// @Summary AI 会话列表
// @Tags AI 助教
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.AISession} "成功"
// @Router /api/ai/sessions [get]
func (c *AIChatController) ListSessions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	sessions, err := c.AIChatService.Sessions(claims.AccountID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, sessions)
}

// GetSession godoc
// @Summary AI 会话记录
// @Tags AI 助教
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=[]model.AIConversation} "成功"
// @Router /api/ai/sessions/{id} [get]
func (c *AIChatController) GetSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	turns, err := c.AIChatService.History(claims.AccountID, ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, turns)
}

// DeleteSession godoc
// @Summary 删除 AI 会话
// @Tags AI 助教
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/ai/sessions/{id} [delete]
func (c *AIChatController) DeleteSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if err := c.AIChatService.DeleteSession(claims.AccountID, ctx.Param("id")); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Explain godoc
// @Summary AI 讲解题目
// @Description 结合会员所选答案讲解错因
// @Tags AI 助教
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   request body ExplainRequest true "题目与所选答案"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/ai/explain [post]
func (c *AIChatController) Explain(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req ExplainRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	text, err := c.AIChatService.ExplainQuestion(ctx.Request.Context(), claims.AccountID, req.QuestionID, req.AnswerID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"explanation": text})
}

// Progress godoc
// @Summary 学习进度分析
// @Description 返回能力值、预估分数、弱项标签与最近成绩；AI 可用时附带文字分析
// @Tags AI 助教
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.ProgressReport} "成功"
// @Router /api/ai/progress [get]
func (c *AIChatController) Progress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	report, err := c.AIChatService.ProgressAnalysis(ctx.Request.Context(), claims.AccountID)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, report)
}
