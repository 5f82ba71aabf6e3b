package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/pkg/logger"
	"toeic_backend/pkg/tracing"

	"go.uber.org/zap"
)

const taggingSystem = "You classify TOEIC questions for an adaptive practice engine. " +
	"Reply with a single JSON object and nothing else."

// AutoTaggingService 定时扫描未打标签的题目，调用 AI 生成主题/类别/语法/词汇标签并写回
type AutoTaggingService struct {
	QuestionRepo *repository.QuestionRepository
	AI           *AIService
	// 两次调用之间的间隔，避免触发 AI API 限流
	Interval  time.Duration
	BatchSize int
}

func NewAutoTaggingService(questionRepo *repository.QuestionRepository, ai *AIService) *AutoTaggingService {
	return &AutoTaggingService{
		QuestionRepo: questionRepo,
		AI:           ai,
		Interval:     time.Second,
		BatchSize:    100,
	}
}

type generatedTags struct {
	Topic      string `json:"topic"`
	Category   string `json:"category"`
	Grammar    string `json:"grammar"`
	Vocabulary string `json:"vocabulary"`
}

// RunAutoTagging 执行一次自动打标签任务，返回成功打标签的题目数
func (s *AutoTaggingService) RunAutoTagging(ctx context.Context) int {
	if !s.AI.Configured() {
		logger.Log.Debug("AI not configured, skip auto tagging")
		return 0
	}

	ctx, span := tracing.StartSpan(ctx, "ai.auto_tagging")
	defer span.End()

	questions, err := s.QuestionRepo.ListUntagged(s.BatchSize)
	if err != nil {
		logger.Log.Error("查询未标签题目失败", zap.Error(err))
		return 0
	}
	if len(questions) == 0 {
		return 0
	}

	logger.Log.Info("开始为题目自动生成标签", zap.Int("count", len(questions)))

	tagged := 0
	for i := range questions {
		if ctx.Err() != nil {
			break
		}
		q := &questions[i]

		var parent *model.Question
		if q.ParentID != nil {
			if p, err := s.QuestionRepo.FindByID(*q.ParentID); err == nil {
				parent = p
			}
		}

		reply, err := s.AI.Chat(ctx, taggingSystem, nil, taggingPrompt(q, parent))
		if err != nil {
			logger.Log.Warn("AI生成标签失败", zap.Uint("questionId", q.ID), zap.Error(err))
			continue
		}

		tags, err := parseGeneratedTags(reply)
		if err != nil {
			logger.Log.Warn("AI标签格式无效", zap.Uint("questionId", q.ID), zap.String("reply", truncate(reply, 200)), zap.Error(err))
			continue
		}

		if err := s.QuestionRepo.UpdateTags(q.ID, tags); err != nil {
			logger.Log.Warn("更新题目标签失败", zap.Uint("questionId", q.ID), zap.Error(err))
			continue
		}
		tagged++

		if s.Interval > 0 {
			time.Sleep(s.Interval)
		}
	}

	logger.Log.Info("题目自动打标签完成", zap.Int("tagged", tagged), zap.Int("total", len(questions)))
	return tagged
}

func taggingPrompt(q, parent *model.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TOEIC Part %d (%s) question.\n", q.Part, model.PartRules[q.Part].Name)
	if parent != nil && parent.Passage != "" {
		fmt.Fprintf(&sb, "Passage: %s\n", truncate(parent.Passage, 800))
	}
	if q.Content != "" {
		fmt.Fprintf(&sb, "Question: %s\n", truncate(q.Content, 500))
	}
	for _, a := range q.Answers {
		fmt.Fprintf(&sb, "(%s) %s\n", a.Label, a.Content)
	}
	sb.WriteString(`Return {"topic": business topic such as "meetings" or "travel", ` +
		`"category": question type such as "inference" or "detail", ` +
		`"grammar": grammar point tested or "", ` +
		`"vocabulary": key vocabulary theme or ""}. Use lowercase English.`)
	return sb.String()
}

// parseGeneratedTags 容忍 markdown 代码块包裹的 JSON
func parseGeneratedTags(raw string) (model.QuestionTags, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.Trim(raw, "`")
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var g generatedTags
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return model.QuestionTags{}, err
	}
	tags := model.QuestionTags{
		Topic:         cleanTag(g.Topic),
		Category:      cleanTag(g.Category),
		GrammarTag:    cleanTag(g.Grammar),
		VocabularyTag: cleanTag(g.Vocabulary),
	}
	if tags.Topic == "" {
		return tags, fmt.Errorf("missing topic")
	}
	return tags, nil
}

func cleanTag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if len(tag) > 100 {
		tag = tag[:100]
	}
	return tag
}

// truncate 截取文本前 n 个字符
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
