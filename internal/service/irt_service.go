package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"
	"toeic_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	IRTTriggerManual   = "manual"
	IRTTriggerSchedule = "schedule"
	IRTTriggerCLI      = "cli"
)

// IRTClient Python IRT 微服务客户端
type IRTClient struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

func NewIRTClient(cfg config.IRTConfig) *IRTClient {
	irtModel := cfg.Model
	if irtModel == "" {
		irtModel = "3PL"
	}
	return &IRTClient{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Model:   irtModel,
		HTTP:    &http.Client{Timeout: cfg.Timeout()},
	}
}

type IRTAnalyzeRequest struct {
	Model     string              `json:"model"`
	Responses []model.IRTResponse `json:"responses"`
}

type IRTAnalyzeResponse struct {
	Items     []model.IRTItemParams `json:"items"`
	Abilities []model.IRTAbility    `json:"abilities"`
}

func (c *IRTClient) Configured() bool {
	return c.BaseURL != ""
}

// Health GET /health，非 2xx 视为不可用
func (c *IRTClient) Health(ctx context.Context) error {
	if !c.Configured() {
		return fmt.Errorf("%w: base url not configured", util.ErrIRTServiceUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrIRTServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status %d", util.ErrIRTServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// Analyze POST /irt/analyze
func (c *IRTClient) Analyze(ctx context.Context, responses []model.IRTResponse) (*IRTAnalyzeResponse, error) {
	body, err := json.Marshal(IRTAnalyzeRequest{Model: c.Model, Responses: responses})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/irt/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrIRTServiceUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IRT analyze error (status %d): %s", resp.StatusCode, truncateBody(data))
	}

	var result IRTAnalyzeResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode IRT response: %w", err)
	}
	return &result, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// IRTService 汇总作答数据、调用 Python 服务并回写参数；同一时间只允许一个运行
type IRTService struct {
	Repo   *repository.IRTRepository
	Client *IRTClient
	Cfg    *config.IRTConfig

	mu      sync.Mutex
	running bool
}

func NewIRTService(repo *repository.IRTRepository, client *IRTClient, cfg *config.IRTConfig) *IRTService {
	return &IRTService{
		Repo:   repo,
		Client: client,
		Cfg:    cfg,
	}
}

// UpdateConfig 配置热更新，正在进行的运行继续使用旧配置
func (s *IRTService) UpdateConfig(cfg config.IRTConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Client = NewIRTClient(cfg)
	s.Cfg = &cfg
}

func (s *IRTService) snapshot() (*IRTClient, config.IRTConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Client, *s.Cfg
}

func (s *IRTService) Configured() bool {
	client, _ := s.snapshot()
	return client.Configured()
}

func (s *IRTService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *IRTService) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *IRTService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reachable 仅做健康检查，供进度分析与健康接口使用
func (s *IRTService) Reachable(ctx context.Context) bool {
	client, _ := s.snapshot()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Health(ctx) == nil
}

// Run 执行一次完整的 IRT 参数更新，运行记录总会落库
func (s *IRTService) Run(ctx context.Context, trigger string) (*model.IRTRun, error) {
	if !s.acquire() {
		return nil, util.ErrIRTRunInProgress
	}
	defer s.release()

	ctx, span := tracing.StartSpan(ctx, "irt.run", attribute.String("trigger", trigger))
	defer span.End()

	start := time.Now()
	run := &model.IRTRun{
		Status:    model.IRTRunRunning,
		Trigger:   trigger,
		StartedAt: start,
	}
	if err := s.Repo.CreateRun(run); err != nil {
		return nil, err
	}

	runErr := s.execute(ctx, run)
	if runErr != nil {
		run.Status = model.IRTRunFailed
		run.Message = runErr.Error()
		span.SetStatus(codes.Error, run.Message)
	}
	span.SetAttributes(attribute.String("status", run.Status), attribute.Int("responses", run.ResponseCount))
	if err := s.Repo.FinishRun(run); err != nil {
		logger.Log.Error("Failed to record IRT run", zap.Uint("runId", run.ID), zap.Error(err))
	}

	monitoring.IRTRuns.WithLabelValues(run.Status).Inc()
	monitoring.IRTRunDuration.Observe(time.Since(start).Seconds())
	logger.Log.Info("IRT run finished",
		zap.Uint("runId", run.ID),
		zap.String("trigger", trigger),
		zap.String("status", run.Status),
		zap.Int("responses", run.ResponseCount),
		zap.Int("items", run.ItemsUpdated),
		zap.Int("members", run.MembersUpdated),
		zap.Duration("elapsed", time.Since(start)))

	return run, runErr
}

func (s *IRTService) execute(ctx context.Context, run *model.IRTRun) error {
	client, cfg := s.snapshot()
	if err := client.Health(ctx); err != nil {
		return err
	}

	var responses []model.IRTResponse
	count, err := s.Repo.ExportResponses(ctx, func(r model.IRTResponse) error {
		responses = append(responses, r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("export responses: %w", err)
	}
	run.ResponseCount = count

	if count < cfg.MinResponses {
		run.Status = model.IRTRunSkipped
		run.Message = fmt.Sprintf("only %d responses, need at least %d", count, cfg.MinResponses)
		return nil
	}

	result, err := client.Analyze(ctx, responses)
	if err != nil {
		return err
	}
	if len(result.Items) == 0 && len(result.Abilities) == 0 {
		return errors.New("IRT service returned no parameters")
	}

	items, members, err := s.Repo.ApplyCalibration(result.Items, result.Abilities)
	if err != nil {
		return fmt.Errorf("apply calibration: %w", err)
	}
	run.ItemsUpdated = items
	run.MembersUpdated = members

	if err := s.Repo.UpdateGroupDifficulty(); err != nil {
		logger.Log.Warn("Failed to refresh group difficulty", zap.Error(err))
	}

	run.Status = model.IRTRunSuccess
	return nil
}

func (s *IRTService) ListRuns(page, limit int) ([]model.IRTRun, int64, error) {
	return s.Repo.ListRuns(page, limit)
}

// IRTStatus 管理端展示用
type IRTStatus struct {
	Configured bool          `json:"configured"`
	Reachable  bool          `json:"reachable"`
	Running    bool          `json:"running"`
	Schedule   string        `json:"schedule"`
	LastRun    *model.IRTRun `json:"lastRun,omitempty"`
}

func (s *IRTService) Status(ctx context.Context) *IRTStatus {
	client, cfg := s.snapshot()
	st := &IRTStatus{
		Configured: client.Configured(),
		Running:    s.Running(),
		Schedule:   cfg.Schedule,
	}
	if st.Configured {
		st.Reachable = s.Reachable(ctx)
	}
	if run, err := s.Repo.LatestRun(); err == nil {
		st.LastRun = run
	}
	return st
}
