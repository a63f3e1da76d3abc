package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alex/internal/agent"
	"alex/internal/memory"
)

type chatRequest struct {
	Message             string          `json:"message"`
	UserID              string          `json:"user_id"`
	SessionID           string          `json:"session_id"`
	ConversationHistory []agent.Message `json:"conversation_history"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Message) == 0 || len(req.Message) > maxChatMessageLen {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("message must be 1..%d characters", maxChatMessageLen))
		return
	}

	result, err := s.agent.ProcessMessage(r.Context(), req.Message, req.UserID, req.SessionID, req.ConversationHistory)
	if err != nil {
		s.log.Error("turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "healthy",
		"version": Version,
	}
	if s.store == nil {
		resp["status"] = "degraded"
		resp["store"] = map[string]any{"status": "unconfigured"}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	storeHealth, err := s.store.HealthCheck(r.Context())
	if err != nil {
		resp["status"] = "degraded"
		resp["store"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		resp["store"] = storeHealth
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMemoryToday(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		writeError(w, http.StatusServiceUnavailable, "memory is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.memory.DailyContext(r.Context()))
}

func (s *Server) handleSummarize(tier string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.summarizer == nil {
			writeError(w, http.StatusServiceUnavailable, "summarizer is not configured")
			return
		}

		var res *memory.TierResult
		var err error
		switch tier {
		case "daily":
			res, err = s.summarizer.RunDaily(r.Context())
		case "weekly":
			res, err = s.summarizer.RunWeekly(r.Context())
		case "monthly":
			res, err = s.summarizer.RunMonthly(r.Context())
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"processed": res.Processed,
			"completed": res.Completed,
			"skipped":   res.Skipped,
			"errors":    res.Errors,
		})
	}
}

func (s *Server) handleSummarizeAll(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summarizer is not configured")
		return
	}
	results := s.summarizer.RunAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"results": results,
	})
}

func (s *Server) handleDebugInteractions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	limit := queryInt(r, "limit", 20)

	interactions, err := s.store.GetRecentInteractions(r.Context(), date, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":         memory.DateOf(date).Format("2006-01-02"),
		"count":        len(interactions),
		"interactions": interactions,
	})
}

func (s *Server) handleDebugSemanticSearch(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		writeError(w, http.StatusServiceUnavailable, "memory is not configured")
		return
	}
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	topK := queryInt(r, "top_k", 5)

	matches, err := s.memory.Search(r.Context(), query, topK, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(matches),
		"matches": matches,
	})
}

func (s *Server) handleDebugSummaries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	ctx := r.Context()
	now := time.Now().UTC()

	resp := map[string]any{}
	if daily, err := s.store.GetDailySummary(ctx, now); err == nil && daily != nil {
		resp["daily"] = daily
	}
	if weekly, err := s.store.GetWeeklySummary(ctx, memory.WeekIDOf(now)); err == nil && weekly != nil {
		resp["weekly"] = weekly
	}
	if monthly, err := s.store.GetMonthlySummary(ctx, memory.MonthIDOf(now)); err == nil && monthly != nil {
		resp["monthly"] = monthly
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDebugUnsummarized(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	ctx := r.Context()

	days, err := s.store.GetUnsummarizedDays(ctx, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	weeks, err := s.store.GetUnsummarizedWeeks(ctx, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	months, err := s.store.GetUnsummarizedMonths(ctx, 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dayStrings := make([]string, 0, len(days))
	for _, d := range days {
		dayStrings = append(dayStrings, d.Format("2006-01-02"))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":   dayStrings,
		"weeks":  weeks,
		"months": months,
	})
}

func (s *Server) handleBackfillEmbeddings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "store or embedder is not configured")
		return
	}

	pending, err := s.store.InteractionsMissingEmbedding(r.Context(), backfillBatchLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var mu sync.Mutex
	embedded := 0
	var failures []string

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(4)
	for _, in := range pending {
		g.Go(func() error {
			vec, err := s.embedder.Embed(ctx, in.UserMessage+"\n"+in.AssistantResponse)
			if err == nil {
				err = s.store.UpdateInteractionEmbedding(ctx, in.ID, vec)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("interaction %d: %v", in.ID, err))
				return nil
			}
			embedded++
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("embedding backfill complete",
		zap.Int("embedded", embedded),
		zap.Int("failed", len(failures)))
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":  len(pending),
		"embedded": embedded,
		"failures": failures,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return def
}
