// Package server exposes the agent over HTTP: the chat endpoint, the
// summarization task triggers, and the health and debug surfaces, all
// under /api/v1.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"alex/internal/agent"
	"alex/internal/config"
	"alex/internal/cortex"
	"alex/internal/memory"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

const maxChatMessageLen = 10_000

// backfillBatchLimit caps one backfill-embeddings call.
const backfillBatchLimit = 100

// Agent handles one conversational turn.
type Agent interface {
	ProcessMessage(ctx context.Context, userMessage, userID, sessionID string, history []agent.Message) (*agent.Result, error)
}

// MemoryReader serves the memory introspection endpoints.
type MemoryReader interface {
	DailyContext(ctx context.Context) *memory.Context
	Search(ctx context.Context, query string, topK int, minScore float64) ([]memory.Interaction, error)
}

// Store is the slice of the memory store the HTTP surface reads.
type Store interface {
	HealthCheck(ctx context.Context) (map[string]any, error)
	GetRecentInteractions(ctx context.Context, date time.Time, limit int) ([]memory.Interaction, error)
	GetDailySummary(ctx context.Context, date time.Time) (*memory.DailySummary, error)
	GetWeeklySummary(ctx context.Context, weekID string) (*memory.WeeklySummary, error)
	GetMonthlySummary(ctx context.Context, monthID string) (*memory.MonthlySummary, error)
	GetUnsummarizedDays(ctx context.Context, limit int) ([]time.Time, error)
	GetUnsummarizedWeeks(ctx context.Context, limit int) ([]string, error)
	GetUnsummarizedMonths(ctx context.Context, limit int) ([]string, error)
	InteractionsMissingEmbedding(ctx context.Context, limit int) ([]memory.Interaction, error)
	UpdateInteractionEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// Summarizer triggers the batch compression tiers.
type Summarizer interface {
	RunDaily(ctx context.Context) (*memory.TierResult, error)
	RunWeekly(ctx context.Context) (*memory.TierResult, error)
	RunMonthly(ctx context.Context) (*memory.TierResult, error)
	RunAll(ctx context.Context) map[string]*memory.TierResult
}

// Options carries the server's collaborators. Agent is required; nil
// optional collaborators disable their endpoints with a 503.
type Options struct {
	Agent      Agent
	Memory     MemoryReader
	Store      Store
	Summarizer Summarizer
	Embedder   cortex.Embedder
	AppEnv     string
	Log        *zap.Logger
}

// Server is the HTTP surface over the agent and its memory.
type Server struct {
	agent      Agent
	memory     MemoryReader
	store      Store
	summarizer Summarizer
	embedder   cortex.Embedder
	appEnv     string
	log        *zap.Logger
}

// New builds the server.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		agent:      opts.Agent,
		memory:     opts.Memory,
		store:      opts.Store,
		summarizer: opts.Summarizer,
		embedder:   opts.Embedder,
		appEnv:     opts.AppEnv,
		log:        log.Named("server"),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	if s.appEnv == config.EnvDevelopment {
		r.Use(corsAllowAll)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/health", s.handleHealth)
		r.Get("/memory/today", s.handleMemoryToday)

		r.Post("/tasks/summarize_daily", s.handleSummarize("daily"))
		r.Post("/tasks/summarize_weekly", s.handleSummarize("weekly"))
		r.Post("/tasks/summarize_monthly", s.handleSummarize("monthly"))
		r.Post("/tasks/summarize_all", s.handleSummarizeAll)

		r.Get("/debug/interactions", s.handleDebugInteractions)
		r.Get("/debug/semantic-search", s.handleDebugSemanticSearch)
		r.Get("/debug/summaries", s.handleDebugSummaries)
		r.Get("/debug/unsummarized", s.handleDebugUnsummarized)

		r.Post("/admin/backfill-embeddings", s.handleBackfillEmbeddings)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
