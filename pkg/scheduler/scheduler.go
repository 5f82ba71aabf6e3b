package scheduler

import (
	"context"
	"sync"
	"time"

	"toeic_backend/pkg/logger"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const (
	tagIRT     = "irt"
	tagTagging = "auto_tagging"
)

// Task 后台定时任务，ctx 在 Stop 时取消
type Task func(ctx context.Context)

// Scheduler 基于 cron 表达式的后台任务，配置热更新时可重新注册
type Scheduler struct {
	scheduler *gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	specs     map[string]string
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.Local),
		ctx:       ctx,
		cancel:    cancel,
		specs:     make(map[string]string),
	}
}

// schedule 表达式为空时移除任务；同一任务不会并发执行
func (s *Scheduler) schedule(tag, spec string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.specs[tag] == spec {
		return nil
	}
	if _, ok := s.specs[tag]; ok {
		if err := s.scheduler.RemoveByTag(tag); err != nil {
			logger.Log.Warn("Failed to remove scheduled job", zap.String("tag", tag), zap.Error(err))
		}
		delete(s.specs, tag)
	}
	if spec == "" {
		return nil
	}

	_, err := s.scheduler.Cron(spec).Tag(tag).SingletonMode().Do(func() {
		start := time.Now()
		task(s.ctx)
		logger.Log.Info("Scheduled job finished", zap.String("tag", tag), zap.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.specs[tag] = spec
	logger.Log.Info("Scheduled job registered", zap.String("tag", tag), zap.String("cron", spec))
	return nil
}

// ScheduleIRT 定时 IRT 参数更新
func (s *Scheduler) ScheduleIRT(spec string, task Task) error {
	return s.schedule(tagIRT, spec, task)
}

// ScheduleTagging 定时 AI 自动打标签
func (s *Scheduler) ScheduleTagging(spec string, task Task) error {
	return s.schedule(tagTagging, spec, task)
}

func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.specs)
}

func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}
