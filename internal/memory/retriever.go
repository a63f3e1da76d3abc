package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alex/internal/cortex"
)

// RetrieverStore is the slice of the store the retriever reads from.
type RetrieverStore interface {
	GetDailySummary(ctx context.Context, date time.Time) (*DailySummary, error)
	GetWeeklySummary(ctx context.Context, weekID string) (*WeeklySummary, error)
	GetRecentInteractions(ctx context.Context, date time.Time, limit int) ([]Interaction, error)
	SemanticSearch(ctx context.Context, queryVec []float32, topK int, minScore float64) ([]Interaction, error)
	GetRelatedConcepts(ctx context.Context, topics []string, limit int) ([]string, error)
	FindProjects(ctx context.Context, entities []string, limit int) ([]string, error)
}

// SummaryLevel selects which compression tier to read for a past date.
type SummaryLevel string

const (
	LevelRaw     SummaryLevel = "raw"
	LevelDaily   SummaryLevel = "daily"
	LevelWeekly  SummaryLevel = "weekly"
	LevelMonthly SummaryLevel = "monthly"
)

// Retriever composes temporal, semantic, and co-occurrence queries into
// a memory Context. Every sub-query fails soft: an error yields an
// empty field and a log line, never a failed turn.
type Retriever struct {
	store    RetrieverStore
	embedder cortex.Embedder
	log      *zap.Logger

	topK     int
	minScore float64

	// now is injectable for tests.
	now func() time.Time
}

// NewRetriever builds a retriever with the given search bounds.
func NewRetriever(store RetrieverStore, embedder cortex.Embedder, topK int, minScore float64, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		log:      log.Named("retriever"),
		topK:     topK,
		minScore: minScore,
		now:      time.Now,
	}
}

// Retrieve assembles the memory context for one turn.
func (r *Retriever) Retrieve(ctx context.Context, userMessage string, topics, entities []string) *Context {
	mc := &Context{}
	today := r.now().UTC()

	if daily, err := r.store.GetDailySummary(ctx, today); err != nil {
		r.log.Warn("daily summary lookup failed", zap.Error(err))
	} else if daily != nil {
		mc.DailySummary = daily
	} else if recent, err := r.store.GetRecentInteractions(ctx, today, 5); err != nil {
		r.log.Warn("recent interactions lookup failed", zap.Error(err))
	} else {
		mc.RelevantInteractions = append(mc.RelevantInteractions, recent...)
	}

	if weekly, err := r.store.GetWeeklySummary(ctx, WeekIDOf(today)); err != nil {
		r.log.Warn("weekly summary lookup failed", zap.Error(err))
	} else if weekly != nil {
		mc.WeeklySummary = weekly
	}

	// Short messages embed to noise; skip semantic search for them.
	if len(userMessage) > 10 && r.embedder != nil {
		if matches := r.semanticSearch(ctx, userMessage); len(matches) > 0 {
			mc.RelevantInteractions = append(mc.RelevantInteractions, matches...)
		}
	}

	if len(topics) > 0 {
		if concepts, err := r.store.GetRelatedConcepts(ctx, topics, 10); err != nil {
			r.log.Warn("related concepts lookup failed", zap.Error(err))
		} else {
			mc.RelatedConcepts = concepts
		}
	}

	if len(entities) > 0 {
		if projects, err := r.store.FindProjects(ctx, entities, 5); err != nil {
			r.log.Warn("project lookup failed", zap.Error(err))
		} else {
			mc.RelatedProjects = projects
		}
	}

	return mc
}

// DailyContext returns today's temporal context only. Used by the
// /memory/today endpoint.
func (r *Retriever) DailyContext(ctx context.Context) *Context {
	return r.Retrieve(ctx, "", nil, nil)
}

// Search embeds the query and runs semantic search with explicit bounds.
// Unlike Retrieve this propagates errors; it backs the debug endpoint.
func (r *Retriever) Search(ctx context.Context, query string, topK int, minScore float64) ([]Interaction, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.store.SemanticSearch(ctx, vec, topK, minScore)
}

func (r *Retriever) semanticSearch(ctx context.Context, userMessage string) []Interaction {
	vec, err := r.embedder.Embed(ctx, userMessage)
	if err != nil {
		r.log.Warn("query embedding failed", zap.Error(err))
		return nil
	}
	matches, err := r.store.SemanticSearch(ctx, vec, r.topK, r.minScore)
	if err != nil {
		r.log.Warn("semantic search failed", zap.Error(err))
		return nil
	}
	return matches
}

// AdaptiveLevel chooses the summary tier for a query about date d:
// raw interactions for yesterday or today, daily summaries inside a
// week, weekly inside a month, monthly beyond.
func AdaptiveLevel(d, today time.Time) SummaryLevel {
	age := DateOf(today).Sub(DateOf(d))
	switch {
	case age <= 24*time.Hour:
		return LevelRaw
	case age <= 7*24*time.Hour:
		return LevelDaily
	case age <= 30*24*time.Hour:
		return LevelWeekly
	default:
		return LevelMonthly
	}
}
