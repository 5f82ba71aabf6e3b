package controller

import (
	"toeic_backend/internal/model"
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MemberController struct {
	MemberService *service.MemberService
}

func NewMemberController(memberService *service.MemberService) *MemberController {
	return &MemberController{MemberService: memberService}
}

// ListMembers godoc
// @Summary 会员列表
// @Description 按姓名、邮箱、电话模糊搜索，可按状态过滤
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   keyword query string false "关键字"
// @Param   status query string false "状态 active|locked"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/members [get]
func (c *MemberController) ListMembers(ctx *gin.Context) {
	page, limit := util.GetPage(ctx)
	members, total, err := c.MemberService.List(ctx.Query("keyword"), ctx.Query("status"), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: members, Total: total, Page: page, Limit: limit})
}

// GetMember godoc
// @Summary 会员详情
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Success 200 {object} util.Response{data=model.Member} "成功"
// @Failure 404 {object} util.Response "会员不存在"
// @Router /api/admin/members/{id} [get]
func (c *MemberController) GetMember(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的会员ID")
		return
	}
	member, err := c.MemberService.Get(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, member)
}

type CreateMemberRequest struct {
	FullName    string `json:"fullName" binding:"required,max=100"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	Phone       string `json:"phone" binding:"omitempty,max=20"`
	TargetScore int    `json:"targetScore" binding:"omitempty,min=10,max=990"`
}

// CreateMember godoc
// @Summary 创建会员
// @Tags 会员管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CreateMemberRequest true "会员信息"
// @Success 201 {object} util.Response{data=model.Member} "创建成功"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/admin/members [post]
func (c *MemberController) CreateMember(ctx *gin.Context) {
	var req CreateMemberRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	member := &model.Member{
		FullName:    req.FullName,
		Email:       req.Email,
		Password:    req.Password,
		Phone:       req.Phone,
		TargetScore: req.TargetScore,
	}
	if err := c.MemberService.Create(member); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, member)
}

// UpdateMember godoc
// @Summary 更新会员
// @Tags 会员管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Param   body body service.MemberUpdate true "更新字段"
// @Success 200 {object} util.Response{data=model.Member} "成功"
// @Router /api/admin/members/{id} [put]
func (c *MemberController) UpdateMember(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的会员ID")
		return
	}
	var req service.MemberUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	member, err := c.MemberService.Update(id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, member)
}

// UpdateSelf godoc
// @Summary 会员修改个人资料
// @Tags 会员
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.MemberUpdate true "更新字段"
// @Success 200 {object} util.Response{data=model.Member} "成功"
// @Router /api/profile [put]
func (c *MemberController) UpdateSelf(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil || !claims.IsMember() {
		util.Forbidden(ctx)
		return
	}
	var req service.MemberUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	member, err := c.MemberService.Update(claims.AccountID, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, member)
}

// LockMember godoc
// @Summary 锁定会员
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/members/{id}/lock [post]
func (c *MemberController) LockMember(ctx *gin.Context) {
	c.setLocked(ctx, true)
}

// UnlockMember godoc
// @Summary 解锁会员
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/members/{id}/unlock [post]
func (c *MemberController) UnlockMember(ctx *gin.Context) {
	c.setLocked(ctx, false)
}

func (c *MemberController) setLocked(ctx *gin.Context, locked bool) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的会员ID")
		return
	}
	if err := c.MemberService.SetLocked(id, locked); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ResetAbility godoc
// @Summary 重置会员能力值
// @Description 清空 IRT 能力值，下次校准时重新估计
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/members/{id}/reset-ability [post]
func (c *MemberController) ResetAbility(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的会员ID")
		return
	}
	if err := c.MemberService.ResetAbility(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DeleteMember godoc
// @Summary 删除会员
// @Tags 会员管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会员ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/members/{id} [delete]
func (c *MemberController) DeleteMember(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的会员ID")
		return
	}
	if err := c.MemberService.Delete(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
