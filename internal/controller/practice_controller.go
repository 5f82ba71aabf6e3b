package controller

import (
	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PracticeController struct {
	PracticeService *service.PracticeService
}

func NewPracticeController(practiceService *service.PracticeService) *PracticeController {
	return &PracticeController{PracticeService: practiceService}
}

// swagger:model GeneratePracticeRequest
type GeneratePracticeRequest struct {
	Part  int `json:"part" binding:"required,min=1,max=7"`
	Count int `json:"count" binding:"omitempty,min=1"`
}

// GeneratePractice godoc
// @Summary 生成自适应练习
// @Description 根据 IRT 能力值、错题与标签弱项为会员挑选题目，并直接开始作答
// @Tags 练习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body GeneratePracticeRequest true "Part 与题量"
// @Success 200 {object} util.Response{data=service.PracticeSession} "成功"
// @Failure 400 {object} util.Response "无效的 Part"
// @Failure 404 {object} util.Response "该 Part 暂无可用题目"
// @Router /api/practice [post]
func (c *PracticeController) GeneratePractice(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	var req GeneratePracticeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.PracticeService.Generate(claims.AccountID, req.Part, req.Count)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// ListParts godoc
// @Summary TOEIC 各 Part 说明
// @Description 返回各 Part 的题型结构与当前可用题量
// @Tags 练习
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.PartSummary} "成功"
// @Router /api/practice/parts [get]
func (c *PracticeController) ListParts(ctx *gin.Context) {
	parts, err := c.PracticeService.Parts()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, parts)
}
