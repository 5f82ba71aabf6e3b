package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/controller"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/service"
	"toeic_backend/pkg/configwatcher"
	"toeic_backend/pkg/database"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"
	"toeic_backend/pkg/scheduler"
	"toeic_backend/pkg/security"
	"toeic_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfigDir 配置文件目录，热更新监听该目录下的 config.yaml
const ConfigDir = "configs"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.IPRateLimiter
	scheduler       *scheduler.Scheduler
	tracer          *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	member     *repository.MemberRepository
	department *repository.DepartmentRepository
	employee   *repository.EmployeeRepository
	question   *repository.QuestionRepository
	test       *repository.TestRepository
	practice   *repository.PracticeRepository
	aiConv     *repository.AIConversationRepository
	irt        *repository.IRTRepository
	chat       *repository.ChatRepository
}

type services struct {
	auth           *service.AuthService
	storage        *service.StorageService
	member         *service.MemberService
	department     *service.DepartmentService
	employee       *service.EmployeeService
	question       *service.QuestionService
	questionImport *service.QuestionImportService
	test           *service.TestService
	practice       *service.PracticeService
	irt            *service.IRTService
	ai             *service.AIService
	aiChat         *service.AIChatService
	autoTagging    *service.AutoTaggingService
	chat           *service.ChatService
	chatHub        *service.ChatHub
}

type controllers struct {
	auth       *controller.AuthController
	member     *controller.MemberController
	department *controller.DepartmentController
	employee   *controller.EmployeeController
	question   *controller.QuestionController
	test       *controller.TestController
	practice   *controller.PracticeController
	irt        *controller.IRTController
	chat       *controller.ChatController
	aiChat     *controller.AIChatController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) (*repositories, error) {
	irtRepo, err := repository.NewIRTRepository(db)
	if err != nil {
		return nil, err
	}
	return &repositories{
		member:     repository.NewMemberRepository(db),
		department: repository.NewDepartmentRepository(db),
		employee:   repository.NewEmployeeRepository(db),
		question:   repository.NewQuestionRepository(db),
		test:       repository.NewTestRepository(db),
		practice:   repository.NewPracticeRepository(db),
		aiConv:     repository.NewAIConversationRepository(db),
		irt:        irtRepo,
		chat:       repository.NewChatRepository(db, rdb),
	}, nil
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.member, repos.employee, cfg)
	s.member = service.NewMemberService(repos.member)
	s.department = service.NewDepartmentService(repos.department)
	s.employee = service.NewEmployeeService(repos.employee, repos.department)
	s.question = service.NewQuestionService(repos.question, s.storage)
	s.questionImport = service.NewQuestionImportService(repos.question)
	s.test = service.NewTestService(repos.test, repos.question)
	s.practice = service.NewPracticeService(repos.practice, repos.member, s.test, &cfg.Practice)
	s.irt = service.NewIRTService(repos.irt, service.NewIRTClient(cfg.IRT), &cfg.IRT)
	s.ai = service.NewAIService(&cfg.AI)
	s.aiChat = service.NewAIChatService(s.ai, s.irt, repos.aiConv, repos.member, repos.practice, repos.question, repos.test)
	s.autoTagging = service.NewAutoTaggingService(repos.question, s.ai)

	s.chatHub = service.NewChatHub(rdb, repos.chat)
	s.chat = service.NewChatService(repos.chat, repos.member, s.storage, s.chatHub)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		member:     controller.NewMemberController(s.member),
		department: controller.NewDepartmentController(s.department),
		employee:   controller.NewEmployeeController(s.employee),
		question:   controller.NewQuestionController(s.question, s.questionImport),
		test:       controller.NewTestController(s.test),
		practice:   controller.NewPracticeController(s.practice),
		irt:        controller.NewIRTController(s.irt),
		chat:       controller.NewChatController(s.chat, s.chatHub),
		aiChat:     controller.NewAIChatController(s.aiChat),
		health:     controller.NewHealthController(db, s.irt),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	a.limiter = security.NewIPRateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	a.limiter.StartCleanup(a.ctx)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// scheduleJobs 按当前配置注册定时任务，配置热更新时重复调用
func (a *App) scheduleJobs(cfg *config.Config) {
	s := a.services
	if err := a.scheduler.ScheduleIRT(cfg.IRT.Schedule, func(ctx context.Context) {
		if _, err := s.irt.Run(ctx, service.IRTTriggerSchedule); err != nil {
			logger.Log.Warn("Scheduled IRT update failed", zap.Error(err))
		}
	}); err != nil {
		logger.Log.Error("Invalid IRT schedule", zap.String("cron", cfg.IRT.Schedule), zap.Error(err))
	}

	if err := a.scheduler.ScheduleTagging(cfg.AI.TaggingSchedule, func(ctx context.Context) {
		n := s.autoTagging.RunAutoTagging(ctx)
		logger.Log.Info("Auto tagging finished", zap.Int("tagged", n))
	}); err != nil {
		logger.Log.Error("Invalid tagging schedule", zap.String("cron", cfg.AI.TaggingSchedule), zap.Error(err))
	}
}

func (a *App) registerConfigCallbacks() {
	a.RegisterConfigCallback(logger.SetLevel)
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.limiter.Update(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute)
	})
	a.RegisterConfigCallback(func(cfg *config.Config) {
		a.services.ai.UpdateConfig(cfg.AI)
		a.services.irt.UpdateConfig(cfg.IRT)
	})
	a.RegisterConfigCallback(a.scheduleJobs)
}

func (a *App) startBackgroundTasks() {
	go a.services.chatHub.Run()

	a.scheduleJobs(a.Config)
	a.scheduler.Start()

	configFile := filepath.Join(ConfigDir, "config.yaml")
	go func() {
		err := configwatcher.WatchConfig(a.ctx, configFile, func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// release 模式默认不迁移，需显式 -migrate
	if cfg.ForceMigrate || cfg.Server.Mode == "debug" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos, err := app.initRepositories(db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize repositories", zap.Error(err))
	}
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.scheduler = scheduler.New()
	app.registerConfigCallbacks()
	app.startBackgroundTasks()

	return app
}

// RunIRTOnce 命令行触发一次 IRT 更新，不启动 HTTP 服务
func RunIRTOnce(cfg *config.Config) error {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		return err
	}
	repo, err := repository.NewIRTRepository(db)
	if err != nil {
		return err
	}
	irt := service.NewIRTService(repo, service.NewIRTClient(cfg.IRT), &cfg.IRT)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := irt.Run(ctx, service.IRTTriggerCLI)
	if run != nil {
		logger.Log.Info("IRT update finished",
			zap.Uint("run", run.ID),
			zap.String("status", run.Status),
			zap.Int("items", run.ItemsUpdated),
			zap.Int("members", run.MembersUpdated),
		)
	}
	return err
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	a.cancel()
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// 清理 WebSocket连接和Redis在线状态
	if a.services != nil && a.services.chatHub != nil {
		a.services.chatHub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	logger.Log.Info("Server exiting")
}
