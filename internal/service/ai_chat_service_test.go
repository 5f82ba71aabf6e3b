package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type aiChatFixture struct {
	db     *gorm.DB
	svc    *AIChatService
	member *model.Member
}

func newAIChatFixture(t *testing.T, ai *AIService) *aiChatFixture {
	t.Helper()
	db := testutil.NewDB(t)
	memberRepo := repository.NewMemberRepository(db)
	svc := NewAIChatService(ai, nil,
		repository.NewAIConversationRepository(db),
		memberRepo,
		repository.NewPracticeRepository(db),
		repository.NewQuestionRepository(db),
		repository.NewTestRepository(db),
	)

	member := &model.Member{FullName: "Lan", Email: "lan@example.com", Password: "x", TargetScore: 800, IrtAbility: ptr(0.5)}
	require.NoError(t, memberRepo.Create(member))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&model.UserError{
			MemberID: member.ID, Part: 5, QuestionID: uint(100 + i),
			QuestionTags: model.QuestionTags{Topic: "travel", GrammarTag: "passive voice"},
		}).Error)
	}
	return &aiChatFixture{db: db, svc: svc, member: member}
}

func TestAIChatSendUsesRecentHistory(t *testing.T) {
	var system string
	var contents []geminiContent
	ai, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		if req.SystemInstruction != nil {
			system = req.SystemInstruction.Parts[0].Text
		}
		contents = req.Contents
		fmt.Fprint(w, geminiReply("Use the past perfect here."))
	})
	f := newAIChatFixture(t, ai)

	repo := f.svc.ConvRepo
	for i := 0; i < 25; i++ {
		role := model.AIRoleUser
		if i%2 == 1 {
			role = model.AIRoleModel
		}
		require.NoError(t, repo.Create(&model.AIConversation{
			MemberID: f.member.ID, SessionID: "s1", Role: role, Content: fmt.Sprintf("turn %d", i),
		}))
	}

	sessionID, reply, err := f.svc.Send(context.Background(), f.member.ID, "s1", "and this one?")
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)
	assert.Equal(t, "Use the past perfect here.", reply)

	// 只带最近 20 条记录，加上本轮提问
	require.Len(t, contents, aiHistoryTurns+1)
	assert.Equal(t, "turn 5", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[0].Role)
	assert.Equal(t, "turn 24", contents[aiHistoryTurns-1].Parts[0].Text)
	assert.Equal(t, "and this one?", contents[aiHistoryTurns].Parts[0].Text)

	assert.Contains(t, system, "Learner: Lan.")
	assert.Contains(t, system, "IRT ability (theta): 0.50")
	assert.Contains(t, system, "Target score: 800.")
	assert.Contains(t, system, "Recent weak areas: travel, passive voice.")

	history, err := f.svc.History(f.member.ID, "s1")
	require.NoError(t, err)
	require.Len(t, history, 27)
	assert.Equal(t, model.AIRoleModel, history[26].Role)
	assert.Equal(t, "Use the past perfect here.", history[26].Content)
}

func TestAIChatSessions(t *testing.T) {
	ai, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		fmt.Fprint(w, geminiReply("ok"))
	})
	f := newAIChatFixture(t, ai)

	question := strings.Repeat("How do I improve Part 3 listening? ", 3)
	sessionID, _, err := f.svc.Send(context.Background(), f.member.ID, "", question)
	require.NoError(t, err)
	assert.Len(t, sessionID, 36)

	sessions, err := f.svc.Sessions(f.member.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sessionID, sessions[0].SessionID)
	assert.EqualValues(t, 2, sessions[0].Turns)
	assert.True(t, strings.HasSuffix(sessions[0].Title, "..."))

	// 其他会员不能删除
	assert.ErrorIs(t, f.svc.DeleteSession(f.member.ID+1, sessionID), util.ErrConversationNotFound)
	require.NoError(t, f.svc.DeleteSession(f.member.ID, sessionID))
	assert.ErrorIs(t, f.svc.DeleteSession(f.member.ID, sessionID), util.ErrConversationNotFound)

	sessions, err = f.svc.Sessions(f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, _, err = f.svc.Send(context.Background(), 9999, "", "hi")
	assert.ErrorIs(t, err, util.ErrMemberNotFound)
}

func TestAIChatSendUncalibratedMember(t *testing.T) {
	var system string
	ai, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		system = req.SystemInstruction.Parts[0].Text
		fmt.Fprint(w, geminiReply("ok"))
	})
	f := newAIChatFixture(t, ai)
	require.NoError(t, f.db.Model(f.member).Update("irt_ability", nil).Error)
	require.NoError(t, f.db.Where("member_id = ?", f.member.ID).Delete(&model.UserError{}).Error)

	_, _, err := f.svc.Send(context.Background(), f.member.ID, "", "hello")
	require.NoError(t, err)
	assert.Contains(t, system, "has not been calibrated yet")
	assert.NotContains(t, system, "Recent weak areas")
}

func TestAIExplainQuestion(t *testing.T) {
	var prompt string
	ai, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		prompt = req.Contents[len(req.Contents)-1].Parts[0].Text
		fmt.Fprint(w, geminiReply("explanation"))
	})
	f := newAIChatFixture(t, ai)
	qrepo := f.svc.QuestionRepo

	q := &model.Question{Part: 5, Content: "The report ___ by Friday.", Explanation: "future passive", Answers: options(4, "A")}
	require.NoError(t, qrepo.Create(q))
	stored, err := qrepo.FindByID(q.ID)
	require.NoError(t, err)
	wrong := stored.Answers[1].ID
	right := stored.Answers[0].ID

	text, err := f.svc.ExplainQuestion(context.Background(), f.member.ID, q.ID, &wrong)
	require.NoError(t, err)
	assert.Equal(t, "explanation", text)
	assert.Contains(t, prompt, "TOEIC Part 5")
	assert.Contains(t, prompt, "Question: The report ___ by Friday.")
	assert.Contains(t, prompt, "The learner chose (B). Explain why it is wrong and why (A) is right.")
	assert.Contains(t, prompt, "future passive")

	_, err = f.svc.ExplainQuestion(context.Background(), f.member.ID, q.ID, &right)
	require.NoError(t, err)
	assert.Contains(t, prompt, "which is correct")

	_, err = f.svc.ExplainQuestion(context.Background(), f.member.ID, q.ID, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "The learner did not answer.")

	// 题组小题带上父题的文章
	group := &model.Question{Part: 7, IsGroup: true, Passage: "Dear customer, your order has shipped."}
	require.NoError(t, f.db.Create(group).Error)
	child := &model.Question{Part: 7, ParentID: &group.ID, Content: "What is the notice about?", Answers: options(4, "C")}
	require.NoError(t, qrepo.Create(child))
	_, err = f.svc.ExplainQuestion(context.Background(), f.member.ID, child.ID, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Passage:\nDear customer")

	_, err = f.svc.ExplainQuestion(context.Background(), f.member.ID, group.ID, nil)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)
	_, err = f.svc.ExplainQuestion(context.Background(), f.member.ID, 9999, nil)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestAIProgressAnalysis(t *testing.T) {
	// 未配置 AI 时只返回统计部分
	f := newAIChatFixture(t, NewAIService(&config.AIConfig{}))
	report, err := f.svc.ProgressAnalysis(context.Background(), f.member.ID)
	require.NoError(t, err)
	assert.True(t, report.Calibrated)
	assert.Equal(t, 0.5, report.Ability)
	assert.Equal(t, util.AbilityToScore(0.5), report.EstimatedScore)
	assert.Equal(t, util.EstimateLevel(report.EstimatedScore), report.Level)
	assert.Equal(t, []string{"travel", "passive voice"}, report.WeakTags)
	assert.Empty(t, report.RecentResults)
	assert.Empty(t, report.Narrative)

	// AI 出错时降级，不影响统计
	failing, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f.svc.AI = failing
	report, err = f.svc.ProgressAnalysis(context.Background(), f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, report.Narrative)

	var prompt string
	ok, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		prompt = req.Contents[0].Parts[0].Text
		fmt.Fprint(w, geminiReply("Keep practising Part 5."))
	})
	f.svc.AI = ok
	report, err = f.svc.ProgressAnalysis(context.Background(), f.member.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep practising Part 5.", report.Narrative)
	assert.Contains(t, prompt, "has not completed any tests yet")

	_, err = f.svc.ProgressAnalysis(context.Background(), 9999)
	assert.ErrorIs(t, err, util.ErrMemberNotFound)
}
