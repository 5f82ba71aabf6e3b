package controller

import (
	"toeic_backend/internal/model"
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DepartmentController struct {
	DepartmentService *service.DepartmentService
}

func NewDepartmentController(departmentService *service.DepartmentService) *DepartmentController {
	return &DepartmentController{DepartmentService: departmentService}
}

// swagger:model DepartmentRequest
type DepartmentRequest struct {
	Code        string `json:"code" binding:"required,max=50"`
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

// ListDepartments godoc
// @Summary 部门列表
// @Tags 部门管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Department} "成功"
// @Router /api/admin/departments [get]
func (c *DepartmentController) ListDepartments(ctx *gin.Context) {
	depts, err := c.DepartmentService.List()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, depts)
}

// GetDepartment godoc
// @Summary 部门详情
// @Tags 部门管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "部门ID"
// @Success 200 {object} util.Response{data=model.Department} "成功"
// @Failure 404 {object} util.Response "部门不存在"
// @Router /api/admin/departments/{id} [get]
func (c *DepartmentController) GetDepartment(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的部门ID")
		return
	}
	dept, err := c.DepartmentService.Get(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, dept)
}

// CreateDepartment godoc
// @Summary 创建部门
// @Description 部门编码唯一，保存时统一转为大写
// @Tags 部门管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body DepartmentRequest true "部门信息"
// @Success 201 {object} util.Response{data=model.Department} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "部门编码已存在"
// @Router /api/admin/departments [post]
func (c *DepartmentController) CreateDepartment(ctx *gin.Context) {
	var req DepartmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	dept := &model.Department{Code: req.Code, Name: req.Name, Description: req.Description}
	if err := c.DepartmentService.Create(dept); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, dept)
}

type UpdateDepartmentRequest struct {
	Name        string `json:"name" binding:"max=100"`
	Description string `json:"description"`
}

// UpdateDepartment godoc
// @Summary 更新部门
// @Tags 部门管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "部门ID"
// @Param   body body UpdateDepartmentRequest true "部门信息"
// @Success 200 {object} util.Response{data=model.Department} "成功"
// @Router /api/admin/departments/{id} [put]
func (c *DepartmentController) UpdateDepartment(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的部门ID")
		return
	}
	var req UpdateDepartmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	dept, err := c.DepartmentService.Update(id, req.Name, req.Description)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, dept)
}

// DeleteDepartment godoc
// @Summary 删除部门
// @Tags 部门管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "部门ID"
// @Success 200 {object} util.Response "成功"
// @Failure 409 {object} util.Response "部门下仍有员工"
// @Router /api/admin/departments/{id} [delete]
func (c *DepartmentController) DeleteDepartment(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的部门ID")
		return
	}
	if err := c.DepartmentService.Delete(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
