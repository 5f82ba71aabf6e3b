package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"toeic_backend/internal/config"
	"toeic_backend/internal/model"
	"toeic_backend/internal/repository"
	"toeic_backend/internal/testutil"
	"toeic_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiReply(text string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": text}}}},
		},
	})
	return string(b)
}

func newFakeGemini(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req geminiRequest)) (*AIService, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.False(t, r.URL.Query().Has("key"))
		handler(w, r, req)
	}))
	t.Cleanup(srv.Close)

	svc := NewAIService(&config.AIConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "gemini-test", Temperature: 0.2})
	return svc, srv
}

func TestAIChat(t *testing.T) {
	svc, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		if assert.NotNil(t, req.SystemInstruction) {
			assert.True(t, strings.HasPrefix(req.SystemInstruction.Parts[0].Text, "tutor"))
		}
		if assert.Len(t, req.Contents, 3) {
			assert.Equal(t, "user", req.Contents[0].Role)
			assert.Equal(t, "model", req.Contents[1].Role)
			assert.Equal(t, "why?", req.Contents[2].Parts[0].Text)
		}
		fmt.Fprint(w, geminiReply("Because of the tense."))
	})

	reply, err := svc.Chat(context.Background(), "tutor", []AIChatMessage{
		{Role: "user", Content: "hi"},
		{Role: "model", Content: "hello"},
	}, "why?")
	require.NoError(t, err)
	assert.Equal(t, "Because of the tense.", reply)
}

func TestAIChatErrors(t *testing.T) {
	svc, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota"}}`)
	})
	_, err := svc.Chat(context.Background(), "", nil, "x")
	assert.ErrorIs(t, err, util.ErrAIUpstream)
	assert.ErrorContains(t, err, "429")
	assert.NotContains(t, err.Error(), "quota")

	unconfigured := NewAIService(&config.AIConfig{})
	_, err = unconfigured.Chat(context.Background(), "", nil, "x")
	assert.ErrorIs(t, err, util.ErrAIUnavailable)

	// 热更新后立即生效
	unconfigured.UpdateConfig(config.AIConfig{APIKey: "k"})
	assert.True(t, unconfigured.Configured())
}

func TestAIErrorsDoNotExposeKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	svc := NewAIService(&config.AIConfig{BaseURL: base, APIKey: "SECRET-KEY-123", Model: "gemini-test"})
	_, err := svc.Chat(context.Background(), "", nil, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrAIUpstream)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
	assert.NotContains(t, err.Error(), base)

	out, errChan := svc.ChatStream(context.Background(), "", nil, "x")
	for range out {
	}
	err = <-errChan
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
}

func TestAIChatStream(t *testing.T) {
	svc, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Part ", "5 ", "tests grammar."} {
			fmt.Fprintf(w, "data: %s\n\n", geminiReply(chunk))
		}
		fmt.Fprint(w, "data: not-json\n\n")
	})

	out, errChan := svc.ChatStream(context.Background(), "", nil, "what is part 5?")
	var sb strings.Builder
	for chunk := range out {
		sb.WriteString(chunk)
	}
	assert.NoError(t, <-errChan)
	assert.Equal(t, "Part 5 tests grammar.", sb.String())
}

func TestAIChatStreamUpstreamError(t *testing.T) {
	svc, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: %s\n\n", geminiReply("partial "))
		fmt.Fprint(w, `data: {"error":{"code":500,"message":"internal"}}`+"\n\n")
	})

	out, errChan := svc.ChatStream(context.Background(), "", nil, "x")
	var chunks []string
	for chunk := range out {
		chunks = append(chunks, chunk)
	}
	assert.Equal(t, []string{"partial "}, chunks)
	assert.ErrorIs(t, <-errChan, util.ErrAIUpstream)
}

func TestParseGeneratedTags(t *testing.T) {
	tags, err := parseGeneratedTags("```json\n{\"topic\":\" Travel \",\"category\":\"Detail\",\"grammar\":\"\",\"vocabulary\":\"airport\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, model.QuestionTags{Topic: "travel", Category: "detail", VocabularyTag: "airport"}, tags)

	_, err = parseGeneratedTags(`{"topic":""}`)
	assert.Error(t, err)
	_, err = parseGeneratedTags("no json here")
	assert.Error(t, err)
}

func TestRunAutoTagging(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewQuestionRepository(db)
	untagged := &model.Question{Part: 5, Content: "The meeting was ___ until Friday."}
	tagged := &model.Question{Part: 5, Content: "done", Topic: "office"}
	require.NoError(t, db.Create(untagged).Error)
	require.NoError(t, db.Create(tagged).Error)

	ai, _ := newFakeGemini(t, func(w http.ResponseWriter, r *http.Request, req geminiRequest) {
		assert.Contains(t, req.Contents[0].Parts[0].Text, "The meeting was")
		fmt.Fprint(w, geminiReply(`{"topic":"meetings","category":"vocabulary","grammar":"passive voice","vocabulary":"scheduling"}`))
	})

	svc := NewAutoTaggingService(repo, ai)
	svc.Interval = 0
	assert.Equal(t, 1, svc.RunAutoTagging(context.Background()))

	got, err := repo.FindByID(untagged.ID)
	require.NoError(t, err)
	assert.Equal(t, "meetings", got.Topic)
	assert.Equal(t, "passive voice", got.GrammarTag)

	left, err := repo.CountUntagged()
	require.NoError(t, err)
	assert.Zero(t, left)
}
