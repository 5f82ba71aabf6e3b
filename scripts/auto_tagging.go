// 手动触发 AI 自动打标签脚本
//
// 定时任务由 ai.tagging_schedule 控制，此脚本用于首次部署或批量导入题目后手动补标签。
// 结果以 YAML 输出到标准输出，方便留档。
//
// 用法: go run scripts/auto_tagging.go -batch 200

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/service"
	"toeic_backend/pkg/database"
	"toeic_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type report struct {
	StartedAt time.Time `yaml:"started_at"`
	Elapsed   string    `yaml:"elapsed"`
	Batch     int       `yaml:"batch"`
	Tagged    int       `yaml:"tagged"`
	Remaining int64     `yaml:"remaining"`
}

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	batch := flag.Int("batch", 100, "单次处理的题目数")
	interval := flag.Duration("interval", time.Second, "两次 AI 调用之间的间隔")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	aiService := service.NewAIService(&cfg.AI)
	if !aiService.Configured() {
		log.Fatal("未配置 ai.api_key")
	}
	questionRepo := repository.NewQuestionRepository(db)
	autoTagging := service.NewAutoTaggingService(questionRepo, aiService)
	autoTagging.BatchSize = *batch
	autoTagging.Interval = *interval

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := report{StartedAt: time.Now(), Batch: *batch}
	r.Tagged = autoTagging.RunAutoTagging(ctx)
	r.Elapsed = time.Since(r.StartedAt).Round(time.Millisecond).String()

	if left, err := questionRepo.CountUntagged(); err == nil {
		r.Remaining = left
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		log.Fatalf("输出结果失败: %v", err)
	}
	enc.Close()
}
