package controller

import (
	"context"
	"errors"
	"net/http"

	"toeic_backend/internal/service"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IRTController struct {
	IRTService *service.IRTService
}

func NewIRTController(irtService *service.IRTService) *IRTController {
	return &IRTController{IRTService: irtService}
}

// RunUpdate godoc
// @Summary 手动触发 IRT 参数更新
// @Description 导出全部作答记录发往 IRT 服务并回写题目参数与会员能力值；async=true 时后台执行立即返回
// @Tags IRT
// @Produce  json
// @Security ApiKeyAuth
// @Param   async query bool false "是否后台执行"
// @Success 200 {object} util.Response{data=model.IRTRun} "运行记录"
// @Success 202 {object} util.Response "已开始后台执行"
// @Failure 409 {object} util.Response "已有更新在运行"
// @Failure 503 {object} util.Response "IRT 服务不可用"
// @Router /api/admin/irt/run [post]
func (c *IRTController) RunUpdate(ctx *gin.Context) {
	// 更新一旦开始不随请求断开而中止
	runCtx := context.WithoutCancel(ctx.Request.Context())

	if ctx.Query("async") == "true" {
		if c.IRTService.Running() {
			util.HandleError(ctx, util.ErrIRTRunInProgress)
			return
		}
		go func() {
			if _, err := c.IRTService.Run(runCtx, service.IRTTriggerManual); err != nil {
				logger.Log.Warn("Background IRT run failed", zap.Error(err))
			}
		}()
		ctx.JSON(http.StatusAccepted, util.Response{Code: http.StatusAccepted, Message: "IRT update started"})
		return
	}

	run, err := c.IRTService.Run(runCtx, service.IRTTriggerManual)
	// 其余失败原因已写入运行记录的 message
	if err != nil && (run == nil || errors.Is(err, util.ErrIRTServiceUnavailable)) {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, run)
}

// GetStatus godoc
// @Summary IRT 服务状态
// @Tags IRT
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.IRTStatus} "成功"
// @Router /api/admin/irt/status [get]
func (c *IRTController) GetStatus(ctx *gin.Context) {
	util.Success(ctx, c.IRTService.Status(ctx.Request.Context()))
}

// ListRuns godoc
// @Summary IRT 运行记录
// @Tags IRT
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/irt/runs [get]
func (c *IRTController) ListRuns(ctx *gin.Context) {
	page, limit := util.GetPage(ctx)
	runs, total, err := c.IRTService.ListRuns(page, limit)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, util.PageResponse{List: runs, Total: total, Page: page, Limit: limit})
}
