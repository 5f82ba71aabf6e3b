package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"toeic_backend/internal/config"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// AIService Google Gemini generateContent 客户端
type AIService struct {
	config atomic.Pointer[config.AIConfig]
	HTTP   *http.Client
}

func NewAIService(cfg *config.AIConfig) *AIService {
	s := &AIService{HTTP: &http.Client{}}
	s.UpdateConfig(*cfg)
	return s
}

// UpdateConfig 配置热更新，进行中的请求不受影响
func (s *AIService) UpdateConfig(cfg config.AIConfig) {
	s.config.Store(&cfg)
}

// AIChatMessage 一轮对话，Role 为 user 或 model
type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// 输出格式约束，附加在每个系统指令之后
const formatGuideline = "\n\nFormatting rules:\n" +
	"- Answer in plain Markdown with short paragraphs and bullet lists.\n" +
	"- Put example sentences on their own lines.\n" +
	"- Do not output hyperlinks.\n" +
	"- Only discuss English learning and the TOEIC exam; politely decline unrelated requests."

func (s *AIService) Configured() bool {
	return s.config.Load().APIKey != ""
}

// endpoint 不携带密钥，密钥只放在 x-goog-api-key 请求头
func (s *AIService) endpoint(cfg *config.AIConfig, method string, stream bool) string {
	target := fmt.Sprintf("%s/models/%s:%s", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model, method)
	if stream {
		target += "?alt=sse"
	}
	return target
}

// fail 记录上游失败并返回不含请求地址与密钥的错误
func (s *AIService) fail(op string, status int, detail string) error {
	monitoring.AIRequests.WithLabelValues(op, "error").Inc()
	logger.Log.Warn("AI request failed", zap.String("operation", op), zap.Int("status", status), zap.String("detail", detail))
	if status > 0 {
		return fmt.Errorf("%w (status %d)", util.ErrAIUpstream, status)
	}
	return util.ErrAIUpstream
}

// transportDetail 去掉 *url.Error 中的 URL，只保留底层原因
func transportDetail(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

func (s *AIService) buildRequest(system string, history []AIChatMessage, prompt string) geminiRequest {
	cfg := s.config.Load()
	req := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxTokens,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system + formatGuideline}}}
	}
	for _, h := range history {
		role := h.Role
		if role != "model" {
			role = "user"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: h.Content}}})
	}
	req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})
	return req
}

func (s *AIService) post(ctx context.Context, method string, stream bool, body geminiRequest) (*http.Response, error) {
	cfg := s.config.Load()
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(cfg, method, stream), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", cfg.APIKey)
	return s.HTTP.Do(req)
}

// Chat 阻塞式生成，返回完整回复
func (s *AIService) Chat(ctx context.Context, system string, history []AIChatMessage, prompt string) (string, error) {
	if !s.Configured() {
		return "", util.ErrAIUnavailable
	}

	resp, err := s.post(ctx, "generateContent", false, s.buildRequest(system, history, prompt))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", s.fail("chat", 0, transportDetail(err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", s.fail("chat", resp.StatusCode, truncateBody(body))
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", s.fail("chat", resp.StatusCode, "decode response: "+err.Error())
	}
	if result.Error != nil {
		return "", s.fail("chat", result.Error.Code, result.Error.Message)
	}
	text := result.text()
	if text == "" {
		monitoring.AIRequests.WithLabelValues("chat", "empty").Inc()
		logger.Log.Warn("AI returned no candidates", zap.String("operation", "chat"))
		return "", fmt.Errorf("%w: no candidates", util.ErrAIUpstream)
	}
	monitoring.AIRequests.WithLabelValues("chat", "ok").Inc()
	return text, nil
}

// ChatStream 以 SSE 方式流式生成，out 关闭表示结束；出错时 errChan 收到一个错误
func (s *AIService) ChatStream(ctx context.Context, system string, history []AIChatMessage, prompt string) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		if !s.Configured() {
			errChan <- util.ErrAIUnavailable
			return
		}

		resp, err := s.post(ctx, "streamGenerateContent", true, s.buildRequest(system, history, prompt))
		if err != nil {
			if ctx.Err() != nil {
				errChan <- ctx.Err()
				return
			}
			errChan <- s.fail("stream", 0, transportDetail(err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- s.fail("stream", resp.StatusCode, truncateBody(body))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				continue
			}

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errChan <- s.fail("stream", chunk.Error.Code, chunk.Error.Message)
				return
			}
			if text := chunk.text(); text != "" {
				select {
				case out <- text:
				case <-ctx.Done():
					errChan <- ctx.Err()
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				errChan <- ctx.Err()
				return
			}
			errChan <- s.fail("stream", resp.StatusCode, err.Error())
			return
		}
		monitoring.AIRequests.WithLabelValues("stream", "ok").Inc()
	}()

	return out, errChan
}
