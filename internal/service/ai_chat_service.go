package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/util"
	"toeic_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	aiHistoryTurns = 20
	weakTagCount   = 5
	weakErrorLimit = 200
)

// AIChatService AI 助教：多轮对话、题目讲解与学习进度分析
type AIChatService struct {
	AI           *AIService
	IRT          *IRTService
	ConvRepo     *repository.AIConversationRepository
	MemberRepo   *repository.MemberRepository
	PracticeRepo *repository.PracticeRepository
	QuestionRepo *repository.QuestionRepository
	TestRepo     *repository.TestRepository
}

func NewAIChatService(
	ai *AIService,
	irt *IRTService,
	convRepo *repository.AIConversationRepository,
	memberRepo *repository.MemberRepository,
	practiceRepo *repository.PracticeRepository,
	questionRepo *repository.QuestionRepository,
	testRepo *repository.TestRepository,
) *AIChatService {
	return &AIChatService{
		AI:           ai,
		IRT:          irt,
		ConvRepo:     convRepo,
		MemberRepo:   memberRepo,
		PracticeRepo: practiceRepo,
		QuestionRepo: questionRepo,
		TestRepo:     testRepo,
	}
}

// learnerContext 系统指令中携带的会员学习画像
type learnerContext struct {
	Member         *model.Member
	Ability        float64
	EstimatedScore int
	Level          string
	WeakTags       []string
}

func (s *AIChatService) learner(memberID uint) (*learnerContext, error) {
	member, err := s.MemberRepo.FindByID(memberID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrMemberNotFound
		}
		return nil, err
	}
	errs, err := s.PracticeRepo.RecentErrorsAllParts(memberID, weakErrorLimit)
	if err != nil {
		return nil, err
	}
	score := util.AbilityToScore(member.Ability())
	return &learnerContext{
		Member:         member,
		Ability:        member.Ability(),
		EstimatedScore: score,
		Level:          util.EstimateLevel(score),
		WeakTags:       NewErrorProfile(errs).WeakTags(weakTagCount),
	}, nil
}

func buildSystemInstruction(lc *learnerContext) string {
	var sb strings.Builder
	sb.WriteString("You are a friendly TOEIC tutor helping a learner prepare for the TOEIC Listening & Reading test.\n")
	fmt.Fprintf(&sb, "Learner: %s.\n", lc.Member.FullName)
	if lc.Member.IrtAbility != nil {
		fmt.Fprintf(&sb, "IRT ability (theta): %.2f, estimated TOEIC score about %d (%s).\n", lc.Ability, lc.EstimatedScore, lc.Level)
	} else {
		sb.WriteString("The learner's ability has not been calibrated yet; assume an intermediate level.\n")
	}
	if lc.Member.TargetScore > 0 {
		fmt.Fprintf(&sb, "Target score: %d.\n", lc.Member.TargetScore)
	}
	if len(lc.WeakTags) > 0 {
		fmt.Fprintf(&sb, "Recent weak areas: %s.\n", strings.Join(lc.WeakTags, ", "))
	}
	sb.WriteString("Adapt explanations to this level and point out related weak areas when relevant.")
	return sb.String()
}

func toChatHistory(turns []model.AIConversation) []AIChatMessage {
	history := make([]AIChatMessage, 0, len(turns))
	for _, t := range turns {
		history = append(history, AIChatMessage{Role: t.Role, Content: t.Content})
	}
	return history
}

func (s *AIChatService) prepare(memberID uint, sessionID string) (string, string, []AIChatMessage, error) {
	if sessionID == "" {
		sessionID = model.GenerateUUID()
	}
	lc, err := s.learner(memberID)
	if err != nil {
		return "", "", nil, err
	}
	turns, err := s.ConvRepo.RecentTurns(memberID, sessionID, aiHistoryTurns)
	if err != nil {
		return "", "", nil, err
	}
	return sessionID, buildSystemInstruction(lc), toChatHistory(turns), nil
}

func (s *AIChatService) save(memberID uint, sessionID, prompt, reply string) error {
	return s.ConvRepo.Create(
		&model.AIConversation{MemberID: memberID, SessionID: sessionID, Role: model.AIRoleUser, Content: prompt},
		&model.AIConversation{MemberID: memberID, SessionID: sessionID, Role: model.AIRoleModel, Content: reply},
	)
}

// Send 阻塞式对话，sessionID 为空时新建会话
func (s *AIChatService) Send(ctx context.Context, memberID uint, sessionID, message string) (string, string, error) {
	sessionID, system, history, err := s.prepare(memberID, sessionID)
	if err != nil {
		return "", "", err
	}
	reply, err := s.AI.Chat(ctx, system, history, message)
	if err != nil {
		return sessionID, "", err
	}
	if err := s.save(memberID, sessionID, message, reply); err != nil {
		return sessionID, "", err
	}
	return sessionID, reply, nil
}

// Stream 流式对话，完整回复在流结束后落库
func (s *AIChatService) Stream(ctx context.Context, memberID uint, sessionID, message string) (string, <-chan string, <-chan error, error) {
	sessionID, system, history, err := s.prepare(memberID, sessionID)
	if err != nil {
		return "", nil, nil, err
	}

	upstream, upstreamErr := s.AI.ChatStream(ctx, system, history, message)
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		var reply strings.Builder
		for chunk := range upstream {
			reply.WriteString(chunk)
			select {
			case out <- chunk:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
		if err := <-upstreamErr; err != nil {
			errChan <- err
			return
		}
		if reply.Len() == 0 {
			return
		}
		if err := s.save(memberID, sessionID, message, reply.String()); err != nil {
			logger.Log.Error("Failed to save AI conversation", zap.Uint("memberId", memberID), zap.String("sessionId", sessionID), zap.Error(err))
		}
	}()

	return sessionID, out, errChan, nil
}

func (s *AIChatService) Sessions(memberID uint) ([]model.AISession, error) {
	return s.ConvRepo.Sessions(memberID)
}

func (s *AIChatService) History(memberID uint, sessionID string) ([]model.AIConversation, error) {
	return s.ConvRepo.History(memberID, sessionID)
}

func (s *AIChatService) DeleteSession(memberID uint, sessionID string) error {
	n, err := s.ConvRepo.DeleteSession(memberID, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return util.ErrConversationNotFound
	}
	return nil
}

// ExplainQuestion 结合题目、选项与会员所选答案生成讲解
func (s *AIChatService) ExplainQuestion(ctx context.Context, memberID, questionID uint, chosenID *uint) (string, error) {
	q, err := s.QuestionRepo.FindByID(questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", util.ErrQuestionNotFound
		}
		return "", err
	}
	if q.IsGroup {
		return "", fmt.Errorf("%w: choose a question inside the group", util.ErrInvalidQuestion)
	}

	var parent *model.Question
	if q.ParentID != nil {
		if parent, err = s.QuestionRepo.FindByID(*q.ParentID); err != nil {
			return "", err
		}
	}

	lc, err := s.learner(memberID)
	if err != nil {
		return "", err
	}
	return s.AI.Chat(ctx, buildSystemInstruction(lc), nil, explainPrompt(q, parent, chosenID))
}

func explainPrompt(q, parent *model.Question, chosenID *uint) string {
	rule := model.PartRules[q.Part]
	var sb strings.Builder
	fmt.Fprintf(&sb, "Explain this TOEIC Part %d (%s) question.\n", q.Part, rule.Name)

	base := q
	if parent != nil {
		base = parent
	}
	if base.Passage != "" {
		fmt.Fprintf(&sb, "\nPassage:\n%s\n", base.Passage)
	}
	if base.Transcript != "" {
		fmt.Fprintf(&sb, "\nAudio transcript:\n%s\n", base.Transcript)
	}
	if q != base && q.Transcript != "" {
		fmt.Fprintf(&sb, "\nQuestion transcript:\n%s\n", q.Transcript)
	}
	if q.Content != "" {
		fmt.Fprintf(&sb, "\nQuestion: %s\n", q.Content)
	}
	sb.WriteString("\nOptions:\n")
	chosenLabel := ""
	correctLabel := ""
	for _, a := range q.Answers {
		fmt.Fprintf(&sb, "(%s) %s\n", a.Label, a.Content)
		if a.IsCorrect {
			correctLabel = a.Label
		}
		if chosenID != nil && a.ID == *chosenID {
			chosenLabel = a.Label
		}
	}
	fmt.Fprintf(&sb, "\nCorrect answer: (%s)\n", correctLabel)
	switch {
	case chosenLabel == "":
		sb.WriteString("The learner did not answer.\n")
	case chosenLabel == correctLabel:
		fmt.Fprintf(&sb, "The learner chose (%s), which is correct. Confirm why it is right.\n", chosenLabel)
	default:
		fmt.Fprintf(&sb, "The learner chose (%s). Explain why it is wrong and why (%s) is right.\n", chosenLabel, correctLabel)
	}
	if q.Explanation != "" {
		fmt.Fprintf(&sb, "\nReference explanation from the question bank:\n%s\n", q.Explanation)
	}
	return sb.String()
}

// ProgressReport 学习进度分析
type ProgressReport struct {
	Ability        float64            `json:"ability"`
	Calibrated     bool               `json:"calibrated"`
	EstimatedScore int                `json:"estimatedScore"`
	Level          string             `json:"level"`
	WeakTags       []string           `json:"weakTags"`
	RecentResults  []model.TestResult `json:"recentResults"`
	IRTReachable   bool               `json:"irtReachable"`
	Narrative      string             `json:"narrative,omitempty"`
}

// ProgressAnalysis AI 不可用时仍返回统计部分，Narrative 为空
func (s *AIChatService) ProgressAnalysis(ctx context.Context, memberID uint) (*ProgressReport, error) {
	lc, err := s.learner(memberID)
	if err != nil {
		return nil, err
	}
	results, _, err := s.TestRepo.ListResults(memberID, model.ResultCompleted, 1, 10)
	if err != nil {
		return nil, err
	}

	report := &ProgressReport{
		Ability:        lc.Ability,
		Calibrated:     lc.Member.IrtAbility != nil,
		EstimatedScore: lc.EstimatedScore,
		Level:          lc.Level,
		WeakTags:       lc.WeakTags,
		RecentResults:  results,
	}
	if s.IRT != nil {
		report.IRTReachable = s.IRT.Reachable(ctx)
	}

	if !s.AI.Configured() {
		return report, nil
	}

	var sb strings.Builder
	sb.WriteString("Write a short progress analysis for this learner with three concrete study suggestions.\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s: %d/%d correct, listening %d, reading %d, total %d\n",
			r.StartedAt.Format(util.DateFormat), r.CorrectCount, r.TotalCount, r.ListeningScore, r.ReadingScore, r.TotalScore)
	}
	if len(results) == 0 {
		sb.WriteString("The learner has not completed any tests yet.\n")
	}
	narrative, err := s.AI.Chat(ctx, buildSystemInstruction(lc), nil, sb.String())
	if err != nil {
		logger.Log.Warn("AI progress narrative failed", zap.Uint("memberId", memberID), zap.Error(err))
		return report, nil
	}
	report.Narrative = narrative
	return report, nil
}
