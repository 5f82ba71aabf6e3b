package app

import (
	"toeic_backend/docs"
	"toeic_backend/internal/config"
	"toeic_backend/internal/middleware"
	"toeic_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg, repos.member, repos.employee), middleware.ActivityMiddleware(repos.member))
	{
		authGroup.GET("/profile", c.auth.GetProfile)
		authGroup.PUT("/profile", c.member.UpdateSelf)
		authGroup.PUT("/profile/password", c.auth.ChangePassword)

		// 会员学习相关接口
		registerMemberRoutes(authGroup, c)

		// 员工后台接口
		registerAdminRoutes(authGroup.Group("/admin"), c)
	}
}

func registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)
		public.POST("/auth/employee/login", c.auth.EmployeeLogin)
	}
}

func registerMemberRoutes(rg *gin.RouterGroup, c *controllers) {
	study := rg.Group("/study", middleware.FeatureMiddleware(middleware.FeatureStudy), middleware.MemberOnly())
	{
		study.GET("/tests", c.test.ListPublishedTests)
		study.POST("/tests/:id/start", c.test.StartTest)
		study.GET("/results", c.test.ListResults)
		study.GET("/results/:id", c.test.GetResult)
		study.GET("/results/:id/session", c.test.GetSession)
		study.PUT("/results/:id/answers", c.test.SaveAnswers)
		study.POST("/results/:id/submit", c.test.SubmitTest)
	}

	practice := rg.Group("/practice", middleware.FeatureMiddleware(middleware.FeaturePractice), middleware.MemberOnly())
	{
		practice.POST("", c.practice.GeneratePractice)
		practice.GET("/parts", c.practice.ListParts)
	}

	chat := rg.Group("/chat", middleware.FeatureMiddleware(middleware.FeatureChat), middleware.MemberOnly())
	{
		chat.GET("/ws", c.chat.HandleWS)
		chat.POST("/groups", c.chat.CreateGroup)
		chat.POST("/privates", c.chat.CreatePrivateChat)
		chat.GET("/conversations", c.chat.GetConversations)
		chat.GET("/conversations/:id/messages", c.chat.GetHistory)
		chat.POST("/conversations/:id/messages", c.chat.SendMessage)
		chat.POST("/conversations/:id/files", c.chat.UploadFile)
		chat.PUT("/conversations/:id/read", c.chat.MarkRead)
		chat.GET("/conversations/:id/members", c.chat.GetMembers)
		chat.POST("/conversations/:id/members", c.chat.InviteMember)
		chat.POST("/conversations/:id/leave", c.chat.LeaveGroup)
		chat.GET("/online/:memberId", c.chat.GetOnlineStatus)
	}

	ai := rg.Group("/ai", middleware.FeatureMiddleware(middleware.FeatureAIChat), middleware.MemberOnly())
	{
		ai.POST("/chat", c.aiChat.Send)
		ai.POST("/chat/stream", c.aiChat.Stream)
		ai.GET("/sessions", c.aiChat.ListSessions)
		ai.GET("/sessions/:id", c.aiChat.GetSession)
		ai.DELETE("/sessions/:id", c.aiChat.DeleteSession)
		ai.POST("/explain", c.aiChat.Explain)
		ai.GET("/progress", c.aiChat.Progress)
	}
}

func registerAdminRoutes(admin *gin.RouterGroup, c *controllers) {
	questions := admin.Group("/questions", middleware.FeatureMiddleware(middleware.FeatureQuestions))
	{
		questions.GET("", c.question.ListQuestions)
		questions.POST("", c.question.CreateQuestion)
		questions.POST("/media", c.question.UploadMedia)
		questions.POST("/import", c.question.ImportQuestions)
		questions.GET("/export", c.question.ExportQuestions)
		questions.GET("/:id", c.question.GetQuestion)
		questions.PUT("/:id", c.question.UpdateQuestion)
		questions.DELETE("/:id", c.question.DeleteQuestion)
		questions.POST("/:id/media", c.question.UploadQuestionMedia)
	}

	tests := admin.Group("/tests", middleware.FeatureMiddleware(middleware.FeatureTests))
	{
		tests.GET("", c.test.ListTests)
		tests.POST("", c.test.CreateTest)
		tests.GET("/:id", c.test.GetTest)
		tests.PUT("/:id", c.test.UpdateTest)
		tests.PUT("/:id/publish", c.test.PublishTest)
		tests.DELETE("/:id", c.test.DeleteTest)
	}

	members := admin.Group("/members", middleware.FeatureMiddleware(middleware.FeatureMembers))
	{
		members.GET("", c.member.ListMembers)
		members.POST("", c.member.CreateMember)
		members.GET("/:id", c.member.GetMember)
		members.PUT("/:id", c.member.UpdateMember)
		members.DELETE("/:id", c.member.DeleteMember)
		members.POST("/:id/lock", c.member.LockMember)
		members.POST("/:id/unlock", c.member.UnlockMember)
		members.POST("/:id/reset-ability", c.member.ResetAbility)
	}

	employees := admin.Group("/employees", middleware.FeatureMiddleware(middleware.FeatureEmployees))
	{
		employees.GET("", c.employee.ListEmployees)
		employees.POST("", c.employee.CreateEmployee)
		employees.GET("/:id", c.employee.GetEmployee)
		employees.PUT("/:id", c.employee.UpdateEmployee)
		employees.PUT("/:id/status", c.employee.SetEmployeeDisabled)
		employees.DELETE("/:id", c.employee.DeleteEmployee)
	}

	departments := admin.Group("/departments", middleware.FeatureMiddleware(middleware.FeatureDepartments))
	{
		departments.GET("", c.department.ListDepartments)
		departments.POST("", c.department.CreateDepartment)
		departments.GET("/:id", c.department.GetDepartment)
		departments.PUT("/:id", c.department.UpdateDepartment)
		departments.DELETE("/:id", c.department.DeleteDepartment)
	}

	irt := admin.Group("/irt", middleware.FeatureMiddleware(middleware.FeatureIRT))
	{
		irt.POST("/run", c.irt.RunUpdate)
		irt.GET("/status", c.irt.GetStatus)
		irt.GET("/runs", c.irt.ListRuns)
	}
}
