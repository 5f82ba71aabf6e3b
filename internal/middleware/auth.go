package middleware

import (
	"errors"
	"strings"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	// WebSocket 握手无法自定义 Header，允许从 query 传入
	return c.Query("token")
}

type MemberFinder interface {
	FindByID(id uint) (*model.Member, error)
}

type EmployeeFinder interface {
	FindByID(id uint) (*model.Employee, error)
}

// AuthMiddleware 校验 JWT 后按账号当前状态放行，角色以数据库为准
func AuthMiddleware(cfg *config.Config, members MemberFinder, employees EmployeeFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
		if err != nil {
			logger.Log.Debug("JWT parse failed", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if err := refreshAccount(claims, members, employees); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				util.Unauthorized(c)
			} else {
				util.HandleError(c, err)
			}
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// refreshAccount 令牌签发后账号可能已被锁定、禁用或调整角色
func refreshAccount(claims *util.Claims, members MemberFinder, employees EmployeeFinder) error {
	if claims.IsMember() {
		member, err := members.FindByID(claims.AccountID)
		if err != nil {
			return err
		}
		if member.Status == model.MemberLocked {
			return util.ErrAccountDisabled
		}
		claims.Role = model.RoleMember
		claims.Email = member.Email
		return nil
	}

	if claims.Kind != model.KindEmployee {
		return gorm.ErrRecordNotFound
	}
	emp, err := employees.FindByID(claims.AccountID)
	if err != nil {
		return err
	}
	if emp.Disabled {
		return util.ErrAccountDisabled
	}
	claims.Role = emp.Role
	claims.Email = emp.Email
	return nil
}

func hasAnyRole(role model.UserRole, roles []model.UserRole) bool {
	// 管理员拥有全部权限
	if role == model.RoleAdmin {
		return true
	}
	for _, r := range roles {
		if role == r {
			return true
		}
	}
	return false
}

type MemberActivityRepo interface {
	UpdateLastSeen(memberID uint) error
}

func ActivityMiddleware(repo MemberActivityRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims != nil && claims.IsMember() {
			// 异步更新，不阻塞主流程
			go repo.UpdateLastSeen(claims.AccountID)
		}
		c.Next()
	}
}
