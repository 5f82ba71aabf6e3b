package middleware

import (
	"toeic_backend/internal/model"
	"toeic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type Feature string

const (
	FeatureQuestions   Feature = "questions"
	FeatureTests       Feature = "tests"
	FeatureMembers     Feature = "members"
	FeatureEmployees   Feature = "employees"
	FeatureDepartments Feature = "departments"
	FeatureIRT         Feature = "irt"
	FeaturePractice    Feature = "practice"
	FeatureStudy       Feature = "study"
	FeatureChat        Feature = "chat"
	FeatureAIChat      Feature = "ai_chat"
)

// FeatureRoles 各功能允许的角色，admin 默认全部放行
var FeatureRoles = map[Feature][]model.UserRole{
	FeatureQuestions:   {model.RoleStaff},
	FeatureTests:       {model.RoleStaff},
	FeatureMembers:     {model.RoleStaff},
	FeatureEmployees:   {},
	FeatureDepartments: {},
	FeatureIRT:         {},
	FeaturePractice:    {model.RoleMember},
	FeatureStudy:       {model.RoleMember},
	FeatureChat:        {model.RoleMember},
	FeatureAIChat:      {model.RoleMember},
}

func CanAccess(role model.UserRole, feature Feature) bool {
	roles, ok := FeatureRoles[feature]
	if !ok {
		return false
	}
	return hasAnyRole(role, roles)
}

// FeatureMiddleware 按功能做权限校验
func FeatureMiddleware(feature Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !CanAccess(user.Role, feature) {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// MemberOnly 仅会员账号可访问（管理员也无会员身份）
func MemberOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		if !user.IsMember() {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
