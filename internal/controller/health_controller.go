package controller

import (
	"net/http"

	"toeic_backend/internal/service"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthController struct {
	DB  *gorm.DB
	IRT *service.IRTService
}

func NewHealthController(db *gorm.DB, irt *service.IRTService) *HealthController {
	return &HealthController{DB: db, IRT: irt}
}

// @Summary 健康检查
// @Description 数据库不可用时返回 503；IRT 服务状态仅作展示
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}

	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	irt := "not_configured"
	if c.IRT != nil && c.IRT.Configured() {
		irt = "down"
		if c.IRT.Reachable(ctx.Request.Context()) {
			irt = "up"
		}
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
			"irt":      irt,
		},
	})
}
