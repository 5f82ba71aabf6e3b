package controller

import (
	"strconv"

	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// TestController 员工端试卷管理与会员端模拟考试
type TestController struct {
	TestService *service.TestService
}

func NewTestController(testService *service.TestService) *TestController {
	return &TestController{TestService: testService}
}

// ListTests godoc
// @Summary 试卷列表（员工）
// @Tags 试卷管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   type query string false "full|part"
// @Param   part query int false "TOEIC Part"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/tests [get]
func (c *TestController) ListTests(ctx *gin.Context) {
	c.listTests(ctx, false)
}

func (c *TestController) listTests(ctx *gin.Context, publishedOnly bool) {
	page, limit := util.GetPage(ctx)
	part, _ := strconv.Atoi(ctx.Query("part"))
	tests, total, err := c.TestService.ListTests(ctx.Query("type"), part, publishedOnly, page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: tests, Total: total, Page: page, Limit: limit})
}

// GetTest godoc
// @Summary 试卷详情（含答案）
// @Tags 试卷管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "试卷ID"
// @Success 200 {object} util.Response{data=model.Test} "成功"
// @Router /api/admin/tests/{id} [get]
func (c *TestController) GetTest(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的试卷ID")
		return
	}
	test, err := c.TestService.GetTest(id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// CreateTest godoc
// @Summary 创建试卷
// @Description 题组ID会自动展开为题组及其全部小题
// @Tags 试卷管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.TestInput true "试卷"
// @Success 201 {object} util.Response{data=model.Test} "创建成功"
// @Router /api/admin/tests [post]
func (c *TestController) CreateTest(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	var in service.TestInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	test, err := c.TestService.CreateTest(claims, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, test)
}

// UpdateTest godoc
// @Summary 更新试卷
// @Tags 试卷管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "试卷ID"
// @Param   body body service.TestInput true "试卷"
// @Success 200 {object} util.Response{data=model.Test} "成功"
// @Router /api/admin/tests/{id} [put]
func (c *TestController) UpdateTest(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的试卷ID")
		return
	}
	var in service.TestInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	test, err := c.TestService.UpdateTest(id, in)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

type PublishRequest struct {
	Published bool `json:"published"`
}

// PublishTest godoc
// @Summary 发布或下架试卷
// @Tags 试卷管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "试卷ID"
// @Param   body body PublishRequest true "是否发布"
// @Success 200 {object} util.Response{data=model.Test} "成功"
// @Router /api/admin/tests/{id}/publish [put]
func (c *TestController) PublishTest(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的试卷ID")
		return
	}
	var req PublishRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	test, err := c.TestService.SetPublished(id, req.Published)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, test)
}

// DeleteTest godoc
// @Summary 删除试卷
// @Tags 试卷管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "试卷ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/tests/{id} [delete]
func (c *TestController) DeleteTest(ctx *gin.Context) {
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的试卷ID")
		return
	}
	if err := c.TestService.DeleteTest(id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ListPublishedTests godoc
// @Summary 可参加的试卷
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   type query string false "full|part"
// @Param   part query int false "TOEIC Part"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/study/tests [get]
func (c *TestController) ListPublishedTests(ctx *gin.Context) {
	c.listTests(ctx, true)
}

// StartTest godoc
// @Summary 开始考试
// @Description 创建一条进行中的作答记录，返回不含正确答案的题目
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "试卷ID"
// @Success 200 {object} util.Response{data=service.SessionView} "成功"
// @Failure 403 {object} util.Response "试卷未发布"
// @Router /api/study/tests/{id}/start [post]
func (c *TestController) StartTest(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的试卷ID")
		return
	}
	view, err := c.TestService.Start(claims.AccountID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// GetSession godoc
// @Summary 获取作答进度
// @Description 续答时获取题目与已选答案
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "作答记录ID"
// @Success 200 {object} util.Response{data=service.SessionView} "成功"
// @Router /api/study/results/{id}/session [get]
func (c *TestController) GetSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的作答记录ID")
		return
	}
	view, err := c.TestService.Session(claims.AccountID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

type SubmitAnswersRequest struct {
	Answers []service.AnswerSubmission `json:"answers" binding:"dive"`
}

// SaveAnswers godoc
// @Summary 暂存答案
// @Description 同一题重复提交以最后一次为准
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "作答记录ID"
// @Param   body body SubmitAnswersRequest true "答案"
// @Success 200 {object} util.Response "成功"
// @Failure 409 {object} util.Response "已交卷"
// @Router /api/study/results/{id}/answers [put]
func (c *TestController) SaveAnswers(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的作答记录ID")
		return
	}
	var req SubmitAnswersRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.TestService.SaveAnswers(claims.AccountID, id, req.Answers); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// SubmitTest godoc
// @Summary 交卷
// @Description 保存剩余答案并计算正确数与 TOEIC 换算分
// @Tags 学习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "作答记录ID"
// @Param   body body SubmitAnswersRequest false "答案"
// @Success 200 {object} util.Response{data=model.TestResult} "成功"
// @Failure 409 {object} util.Response "已交卷"
// @Router /api/study/results/{id}/submit [post]
func (c *TestController) SubmitTest(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的作答记录ID")
		return
	}
	var req SubmitAnswersRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	result, err := c.TestService.Submit(claims.AccountID, id, req.Answers)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// ListResults godoc
// @Summary 成绩历史
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   status query string false "in_progress|completed"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/study/results [get]
func (c *TestController) ListResults(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	page, limit := util.GetPage(ctx)
	results, total, err := c.TestService.History(claims.AccountID, ctx.Query("status"), page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: results, Total: total, Page: page, Limit: limit})
}

// GetResult godoc
// @Summary 成绩详情
// @Description 含正确答案与解析，仅已交卷的记录可查看
// @Tags 学习
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "作答记录ID"
// @Success 200 {object} util.Response{data=service.ResultDetail} "成功"
// @Failure 409 {object} util.Response "尚未交卷"
// @Router /api/study/results/{id} [get]
func (c *TestController) GetResult(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	id, ok := util.ParseIDParam(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "无效的作答记录ID")
		return
	}
	detail, err := c.TestService.Detail(claims.AccountID, id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, detail)
}
