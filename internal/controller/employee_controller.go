package controller

import (
	"strconv"

	"toeic_backend/internal/model"
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type EmployeeController struct {
	EmployeeService *service.EmployeeService
}

func NewEmployeeController(employeeService *service.EmployeeService) *EmployeeController {
	return &EmployeeController{EmployeeService: employeeService}
}

type CreateEmployeeRequest struct {
	FullName     string         `json:"fullName" binding:"required,max=100"`
	Email        string         `json:"email" binding:"required,email"`
	Password     string         `json:"password" binding:"required,min=6"`
	Phone        string         `json:"phone" binding:"omitempty,max=20"`
	DepartmentID *uint          `json:"departmentId"`
	Role         model.UserRole `json:"role" binding:"omitempty,oneof=admin staff"`
}

// 管理员不能停用或删除自己
func isSelf(ctx *gin.Context, id uint) bool {
	claims := util.GetUserFromContext(ctx)
	return claims != nil && !claims.IsMember() && claims.AccountID == id
}

// ListEmployees godoc
// @Summary 员工列表
// @Tags 员工管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   keyword query string false "关键字"
// @Param   departmentId query int false "部门ID"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/employees [get]
func (c *EmployeeController) ListEmployees(ctx *gin.Context) {
	page, limit := util.GetPage(ctx)
	deptID, _ := strconv.ParseUint(ctx.Query("departmentId"), 10, 32)
	emps, total, err := c.EmployeeService.List(ctx.Query("keyword"), uint(deptID), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: emps, Total: total, Page: page, Limit: limit})
}

// GetEmployee godoc
// @Summary 员工详情
// @Tags 员工管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "员工ID"
// @Success 200 {object} util.Response{data=model.Employee} "成功"
// @Failure 404 {object} util.Response "员工不存在"
// @Router /api/admin/employees/{id} [get]
func (c *EmployeeController) GetEmployee(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的员工ID")
		return
	}
	emp, err := c.EmployeeService.Get(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, emp)
}

// CreateEmployee godoc
// @Summary 创建员工
// @Tags 员工管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CreateEmployeeRequest true "员工信息"
// @Success 201 {object} util.Response{data=model.Employee} "创建成功"
// @Failure 404 {object} util.Response "部门不存在"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/admin/employees [post]
func (c *EmployeeController) CreateEmployee(ctx *gin.Context) {
	var req CreateEmployeeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	emp := &model.Employee{
		FullName:     req.FullName,
		Email:        req.Email,
		Password:     req.Password,
		Phone:        req.Phone,
		DepartmentID: req.DepartmentID,
		Role:         req.Role,
	}
	if err := c.EmployeeService.Create(emp); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, emp)
}

// UpdateEmployee godoc
// @Summary 更新员工
// @Tags 员工管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "员工ID"
// @Param   body body service.EmployeeUpdate true "更新字段"
// @Success 200 {object} util.Response{data=model.Employee} "成功"
// @Router /api/admin/employees/{id} [put]
func (c *EmployeeController) UpdateEmployee(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的员工ID")
		return
	}
	var req service.EmployeeUpdate
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	emp, err := c.EmployeeService.Update(id, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, emp)
}

type SetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// SetEmployeeDisabled godoc
// @Summary 停用或启用员工
// @Tags 员工管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "员工ID"
// @Param   body body SetDisabledRequest true "是否停用"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/employees/{id}/status [put]
func (c *EmployeeController) SetEmployeeDisabled(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的员工ID")
		return
	}
	var req SetDisabledRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if req.Disabled && isSelf(ctx, id) {
		util.HandleError(ctx, util.ErrPermissionDenied)
		return
	}
	if err := c.EmployeeService.SetDisabled(id, req.Disabled); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// DeleteEmployee godoc
// @Summary 删除员工
// @Tags 员工管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "员工ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/employees/{id} [delete]
func (c *EmployeeController) DeleteEmployee(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的员工ID")
		return
	}
	if isSelf(ctx, id) {
		util.HandleError(ctx, util.ErrPermissionDenied)
		return
	}
	if err := c.EmployeeService.Delete(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
