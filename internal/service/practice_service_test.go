package service

import (
	"math/rand"
	"testing"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPracticeGenerate(t *testing.T) {
	db := testutil.NewDB(t)
	qrepo := repository.NewQuestionRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	testSvc := NewTestService(repository.NewTestRepository(db), qrepo)
	svc := NewPracticeService(repository.NewPracticeRepository(db), memberRepo, testSvc,
		&config.PracticeConfig{DefaultCount: 5, MaxCount: 20, RecentDays: 7})
	svc.Rand = rand.New(rand.NewSource(1))

	member := &model.Member{FullName: "P", Email: "p@example.com", Password: "x"}
	require.NoError(t, memberRepo.Create(member))

	var pool []*model.Question
	for i, b := range []float64{-2, -1, -0.5, 0, 0.2, 0.5, 1, 2} {
		q := &model.Question{Part: 5, Content: "q", Difficulty: ptr(b), Answers: options(4, "A")}
		if i%2 == 0 {
			q.Topic = "finance"
		}
		require.NoError(t, qrepo.Create(q))
		pool = append(pool, q)
	}
	missed := pool[7]
	require.NoError(t, db.Create(&model.UserError{MemberID: member.ID, Part: 5, QuestionID: missed.ID}).Error)

	session, err := svc.Generate(member.ID, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, model.TestTypePractice, session.Test.Type)
	assert.Equal(t, model.ResultInProgress, session.Result.Status)
	require.Len(t, session.Questions, 5)
	assert.Equal(t, 1, session.Quotas.Missed)
	assert.Equal(t, 1, session.Filled[BucketMissed])

	ids := make([]uint, 0, len(session.Questions))
	for _, q := range session.Questions {
		ids = append(ids, q.ID)
	}
	assert.Contains(t, ids, missed.ID)

	// 超过上限按上限截断
	session, err = svc.Generate(member.ID, 5, 100)
	require.NoError(t, err)
	assert.Len(t, session.Questions, len(pool))

	_, err = svc.Generate(member.ID, 9, 5)
	assert.ErrorIs(t, err, util.ErrInvalidPart)
	_, err = svc.Generate(member.ID, 6, 5)
	assert.ErrorIs(t, err, util.ErrNoPracticeQuestions)
	_, err = svc.Generate(9999, 5, 5)
	assert.ErrorIs(t, err, util.ErrMemberNotFound)

	parts, err := svc.Parts()
	require.NoError(t, err)
	require.Len(t, parts, 7)
	assert.Equal(t, 5, parts[4].Part)
	assert.EqualValues(t, len(pool), parts[4].Available)
	assert.Zero(t, parts[5].Available)
}
