package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alex/internal/agent"
	"alex/internal/config"
	"alex/internal/memory"
)

type fakeAgent struct {
	lastMessage string
	lastUserID  string
	err         error
}

func (f *fakeAgent) ProcessMessage(_ context.Context, userMessage, userID, sessionID string, _ []agent.Message) (*agent.Result, error) {
	f.lastMessage = userMessage
	f.lastUserID = userID
	if f.err != nil {
		return nil, f.err
	}
	if sessionID == "" {
		sessionID = "generated-session"
	}
	return &agent.Result{
		Response:  "scripted response",
		SessionID: sessionID,
		Metadata:  agent.ResultMetadata{Intent: "chat", Cortex: "flash"},
	}, nil
}

type fakeMemory struct {
	searchErr error
}

func (f *fakeMemory) DailyContext(context.Context) *memory.Context {
	return &memory.Context{
		DailySummary: &memory.DailySummary{Content: "today was quiet"},
	}
}

func (f *fakeMemory) Search(_ context.Context, query string, topK int, _ float64) ([]memory.Interaction, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]memory.Interaction, 0, topK)
	for i := 0; i < topK; i++ {
		out = append(out, memory.Interaction{ID: int64(i + 1), UserMessage: query, Similarity: 0.9})
	}
	return out, nil
}

type fakeStore struct {
	healthErr error
	missing   []memory.Interaction
	updated   []int64
}

func (f *fakeStore) HealthCheck(context.Context) (map[string]any, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return map[string]any{"status": "connected", "interactions": 12}, nil
}

func (f *fakeStore) GetRecentInteractions(_ context.Context, _ time.Time, limit int) ([]memory.Interaction, error) {
	return []memory.Interaction{{ID: 1, UserMessage: "hello"}}, nil
}

func (f *fakeStore) GetDailySummary(context.Context, time.Time) (*memory.DailySummary, error) {
	return &memory.DailySummary{Content: "daily"}, nil
}

func (f *fakeStore) GetWeeklySummary(context.Context, string) (*memory.WeeklySummary, error) {
	return nil, nil
}

func (f *fakeStore) GetMonthlySummary(context.Context, string) (*memory.MonthlySummary, error) {
	return nil, nil
}

func (f *fakeStore) GetUnsummarizedDays(context.Context, int) ([]time.Time, error) {
	return []time.Time{time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeStore) GetUnsummarizedWeeks(context.Context, int) ([]string, error) {
	return []string{"2026-W34"}, nil
}

func (f *fakeStore) GetUnsummarizedMonths(context.Context, int) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) InteractionsMissingEmbedding(_ context.Context, limit int) ([]memory.Interaction, error) {
	if len(f.missing) > limit {
		return f.missing[:limit], nil
	}
	return f.missing, nil
}

func (f *fakeStore) UpdateInteractionEmbedding(_ context.Context, id int64, _ []float32) error {
	f.updated = append(f.updated, id)
	return nil
}

type fakeSummarizer struct {
	daily *memory.TierResult
	err   error
}

func (f *fakeSummarizer) RunDaily(context.Context) (*memory.TierResult, error) {
	return f.daily, f.err
}

func (f *fakeSummarizer) RunWeekly(context.Context) (*memory.TierResult, error) {
	return &memory.TierResult{}, nil
}

func (f *fakeSummarizer) RunMonthly(context.Context) (*memory.TierResult, error) {
	return &memory.TierResult{}, nil
}

func (f *fakeSummarizer) RunAll(context.Context) map[string]*memory.TierResult {
	return map[string]*memory.TierResult{
		"daily":   {Processed: 2, Completed: 2},
		"weekly":  {},
		"monthly": {},
	}
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, 768), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 768)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 768 }
func (f *fakeEmbedder) Name() string    { return "fake-embedder" }

func newTestServer(t *testing.T, mutate ...func(*Options)) (*Server, *fakeAgent, *fakeStore) {
	t.Helper()
	ag := &fakeAgent{}
	st := &fakeStore{}
	opts := Options{
		Agent:      ag,
		Memory:     &fakeMemory{},
		Store:      st,
		Summarizer: &fakeSummarizer{daily: &memory.TierResult{Processed: 3, Completed: 2, Skipped: 1}},
		Embedder:   &fakeEmbedder{},
		AppEnv:     config.EnvDevelopment,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	return New(opts), ag, st
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestChatHappyPath(t *testing.T) {
	srv, ag, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/chat", map[string]any{
		"message": "hello there",
		"user_id": "u1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "scripted response", body["response"])
	assert.Equal(t, "generated-session", body["session_id"])
	assert.Equal(t, "hello there", ag.lastMessage)
	assert.Equal(t, "u1", ag.lastUserID)
}

func TestChatMessageLengthValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/chat", map[string]any{"message": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/chat", map[string]any{
		"message": strings.Repeat("x", maxChatMessageLen+1),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/chat", map[string]any{
		"message": strings.Repeat("x", maxChatMessageLen),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatInvalidJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatAgentErrorIs500(t *testing.T) {
	srv, ag, _ := newTestServer(t)
	ag.err = fmt.Errorf("graph exceeded 32 steps")

	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "32 steps")
}

func TestHealthHealthy(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
	store, ok := body["store"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "connected", store["status"])
}

func TestHealthDegradedOnStoreError(t *testing.T) {
	srv, _, st := newTestServer(t)
	st.healthErr = fmt.Errorf("connection refused")

	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	store := body["store"].(map[string]any)
	assert.Contains(t, store["error"], "connection refused")
}

func TestMemoryToday(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/memory/today", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	daily := body["daily_summary"].(map[string]any)
	assert.Equal(t, "today was quiet", daily["content"])
}

func TestSummarizeDaily(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/tasks/summarize_daily", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["processed"])
	assert.Equal(t, float64(2), body["completed"])
	assert.Equal(t, float64(1), body["skipped"])
}

func TestSummarizeAllNestsTiers(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/tasks/summarize_all", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	results := body["results"].(map[string]any)
	daily := results["daily"].(map[string]any)
	assert.Equal(t, float64(2), daily["processed"])
	assert.Contains(t, results, "weekly")
	assert.Contains(t, results, "monthly")
}

func TestSummarizeUnavailableWithoutSummarizer(t *testing.T) {
	srv, _, _ := newTestServer(t, func(o *Options) { o.Summarizer = nil })
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/tasks/summarize_daily", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebugInteractions(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/debug/interactions?date=2026-08-20&limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "2026-08-20", body["date"])
	assert.Equal(t, float64(1), body["count"])
}

func TestDebugInteractionsBadDate(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/debug/interactions?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugSemanticSearch(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/debug/semantic-search?query=caching&top_k=3", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "caching", body["query"])
	assert.Equal(t, float64(3), body["count"])
}

func TestDebugSemanticSearchRequiresQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/debug/semantic-search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugUnsummarized(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/debug/unsummarized", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	days := body["days"].([]any)
	assert.Equal(t, []any{"2026-08-20"}, days)
	weeks := body["weeks"].([]any)
	assert.Equal(t, []any{"2026-W34"}, weeks)
}

func TestBackfillEmbeddings(t *testing.T) {
	srv, _, st := newTestServer(t)
	for i := 1; i <= 3; i++ {
		st.missing = append(st.missing, memory.Interaction{ID: int64(i), UserMessage: "m", AssistantResponse: "r"})
	}

	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/admin/backfill-embeddings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["pending"])
	assert.Equal(t, float64(3), body["embedded"])
	assert.Len(t, st.updated, 3)
}

func TestBackfillRespectsBatchLimit(t *testing.T) {
	srv, _, st := newTestServer(t)
	for i := 1; i <= backfillBatchLimit+50; i++ {
		st.missing = append(st.missing, memory.Interaction{ID: int64(i)})
	}

	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/admin/backfill-embeddings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(backfillBatchLimit), body["pending"])
}

func TestCORSHeadersInDevelopment(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNoCORSHeadersInProduction(t *testing.T) {
	srv, _, _ := newTestServer(t, func(o *Options) { o.AppEnv = config.EnvProduction })
	rec := doRequest(t, srv.Router(), http.MethodGet, "/api/v1/health", nil)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestPanicBecomes500(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "boom", body["error"])
}
