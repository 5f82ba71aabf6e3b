package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedResponses 一名会员在已完成试卷中作答 n 道单题
func seedResponses(t *testing.T, db *gorm.DB, n int) (*model.Member, []model.Question) {
	t.Helper()
	member := &model.Member{FullName: "Learner", Email: "learner@example.com", Password: "x"}
	require.NoError(t, db.Create(member).Error)

	test := &model.Test{Title: "Mock", Type: model.TestTypeFull}
	require.NoError(t, db.Create(test).Error)
	now := time.Now()
	result := &model.TestResult{MemberID: member.ID, TestID: test.ID, Status: model.ResultCompleted, StartedAt: now, CompletedAt: &now}
	require.NoError(t, db.Create(result).Error)

	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{Part: 5, Content: "q"}
		require.NoError(t, db.Create(&questions[i]).Error)
		require.NoError(t, db.Create(&model.UserAnswer{
			ResultID:   result.ID,
			QuestionID: questions[i].ID,
			MemberID:   member.ID,
			IsCorrect:  i%2 == 0,
			AnsweredAt: now,
		}).Error)
	}
	return member, questions
}

func newIRTService(t *testing.T, db *gorm.DB, baseURL string, minResponses int) *IRTService {
	t.Helper()
	repo, err := repository.NewIRTRepository(db)
	require.NoError(t, err)
	cfg := &config.IRTConfig{BaseURL: baseURL, MinResponses: minResponses, TimeoutSeconds: 5}
	return NewIRTService(repo, NewIRTClient(*cfg), cfg)
}

func TestIRTRunAppliesCalibration(t *testing.T) {
	db := testutil.NewDB(t)
	member, questions := seedResponses(t, db, 3)

	var got IRTAnalyzeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/irt/analyze":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(IRTAnalyzeResponse{
				Items: []model.IRTItemParams{
					{QuestionID: questions[0].ID, Difficulty: -0.8, Discrimination: 1.1, Guessing: 0.2, Quality: 0.9},
					{QuestionID: questions[1].ID, Difficulty: 0.4, Discrimination: 0.9, Guessing: 0.25, Quality: 0.7},
				},
				Abilities: []model.IRTAbility{{MemberID: member.ID, Theta: 0.65}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc := newIRTService(t, db, srv.URL, 1)
	run, err := svc.Run(context.Background(), IRTTriggerManual)
	require.NoError(t, err)

	assert.Equal(t, model.IRTRunSuccess, run.Status)
	assert.Equal(t, 3, run.ResponseCount)
	assert.Equal(t, 2, run.ItemsUpdated)
	assert.Equal(t, 1, run.MembersUpdated)
	assert.NotNil(t, run.FinishedAt)
	assert.Equal(t, "3PL", got.Model)
	assert.Len(t, got.Responses, 3)

	var q model.Question
	require.NoError(t, db.First(&q, questions[0].ID).Error)
	require.NotNil(t, q.Difficulty)
	assert.InDelta(t, -0.8, *q.Difficulty, 1e-9)
	assert.NotNil(t, q.CalibratedAt)

	var m model.Member
	require.NoError(t, db.First(&m, member.ID).Error)
	assert.InDelta(t, 0.65, m.Ability(), 1e-9)

	runs, total, err := svc.ListRuns(1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, IRTTriggerManual, runs[0].Trigger)
}

func TestIRTRunSkipsWithTooFewResponses(t *testing.T) {
	db := testutil.NewDB(t)
	seedResponses(t, db, 2)

	analyzed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/irt/analyze" {
			analyzed = true
		}
	}))
	defer srv.Close()

	svc := newIRTService(t, db, srv.URL, 50)
	run, err := svc.Run(context.Background(), IRTTriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, model.IRTRunSkipped, run.Status)
	assert.Equal(t, 2, run.ResponseCount)
	assert.False(t, analyzed)
}

func TestIRTRunFailsWhenServiceUnhealthy(t *testing.T) {
	db := testutil.NewDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newIRTService(t, db, srv.URL, 1)
	run, err := svc.Run(context.Background(), IRTTriggerCLI)
	require.ErrorIs(t, err, util.ErrIRTServiceUnavailable)
	require.NotNil(t, run)
	assert.Equal(t, model.IRTRunFailed, run.Status)

	latest, err := svc.Repo.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, model.IRTRunFailed, latest.Status)
	assert.NotEmpty(t, latest.Message)
}

func TestIRTRunRejectsConcurrentRun(t *testing.T) {
	db := testutil.NewDB(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newIRTService(t, db, srv.URL, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(context.Background(), IRTTriggerManual)
	}()

	<-entered
	assert.True(t, svc.Running())
	_, err := svc.Run(context.Background(), IRTTriggerManual)
	assert.ErrorIs(t, err, util.ErrIRTRunInProgress)

	close(release)
	<-done
	assert.False(t, svc.Running())
}

func TestIRTStatusAndHotReload(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newIRTService(t, db, "", 1)

	st := svc.Status(context.Background())
	assert.False(t, st.Configured)
	assert.False(t, st.Reachable)
	assert.Nil(t, st.LastRun)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc.UpdateConfig(config.IRTConfig{BaseURL: srv.URL + "/", Schedule: "0 3 * * *"})
	st = svc.Status(context.Background())
	assert.True(t, st.Configured)
	assert.True(t, st.Reachable)
	assert.Equal(t, "0 3 * * *", st.Schedule)
}
