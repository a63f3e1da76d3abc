// Package memory implements the hybrid memory engine: an append-only
// interaction log in Postgres layered with daily, weekly, and monthly
// rolling summaries, a co-occurrence concept index, and a pgvector
// similarity index.
package memory

import "time"

// Interaction is one completed turn. Immutable after write other than
// a backfilled embedding.
type Interaction struct {
	ID                int64     `json:"id"`
	UserID            string    `json:"user_id"`
	Date              time.Time `json:"date"`
	Timestamp         time.Time `json:"timestamp"`
	UserMessage       string    `json:"user_message"`
	AssistantResponse string    `json:"assistant_response"`
	Intent            string    `json:"intent,omitempty"`
	ComplexityScore   float64   `json:"complexity_score"`
	ModelUsed         string    `json:"model_used,omitempty"`

	// Similarity is populated only by semantic search results.
	Similarity float64 `json:"similarity,omitempty"`
}

// DailySummary compresses one day of interactions.
type DailySummary struct {
	Date              time.Time `json:"date"`
	Content           string    `json:"content"`
	KeyTopics         []string  `json:"key_topics"`
	TotalInteractions int       `json:"total_interactions"`
	ModelUsed         string    `json:"model_used"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// WeeklySummary compresses one ISO week of daily summaries.
// WeekID has the form "2026-W34".
type WeeklySummary struct {
	WeekID            string    `json:"week_id"`
	Year              int       `json:"year"`
	Week              int       `json:"week"`
	Content           string    `json:"content"`
	KeyThemes         []string  `json:"key_themes"`
	SourceCount       int       `json:"source_count"`
	TotalInteractions int       `json:"total_interactions"`
	ModelUsed         string    `json:"model_used"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// MonthlySummary compresses one calendar month of weekly summaries.
// MonthID has the form "2026-8" (no zero padding).
type MonthlySummary struct {
	MonthID     string    `json:"month_id"`
	Year        int       `json:"year"`
	Month       int       `json:"month"`
	Content     string    `json:"content"`
	KeyThemes   []string  `json:"key_themes"`
	SourceCount int       `json:"source_count"`
	ModelUsed   string    `json:"model_used"`
	GeneratedAt time.Time `json:"generated_at"`
}

// CodeChange records one self-modification performed by the agent.
type CodeChange struct {
	ID                   int64     `json:"id"`
	UserID               string    `json:"user_id"`
	Timestamp            time.Time `json:"timestamp"`
	FilesModified        []string  `json:"files_modified"`
	Description          string    `json:"description"`
	Reasoning            string    `json:"reasoning"`
	ChangeType           string    `json:"change_type"`
	CommitSHA            string    `json:"commit_sha,omitempty"`
	RelatedInteractionID int64     `json:"related_interaction_id,omitempty"`
}

// Trade is the persistent audit record of a confirmed, submitted order.
type Trade struct {
	TradeID        string    `json:"trade_id"`
	UserID         string    `json:"user_id"`
	Timestamp      time.Time `json:"timestamp"`
	Symbol         string    `json:"symbol"`
	Action         string    `json:"action"`
	Quantity       int       `json:"quantity"`
	Price          float64   `json:"price,omitempty"`
	InstrumentType string    `json:"instrument_type"`
	OptionSymbol   string    `json:"option_symbol,omitempty"`
	Account        string    `json:"account"`
	Mode           string    `json:"mode"`
	OrderID        string    `json:"order_id,omitempty"`
	Status         string    `json:"status"`
}

// Project is a named long-running effort matched against extracted
// entities during retrieval.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

// Context is the transient per-turn bundle of retrieved memory.
type Context struct {
	DailySummary         *DailySummary  `json:"daily_summary,omitempty"`
	WeeklySummary        *WeeklySummary `json:"weekly_summary,omitempty"`
	RelevantInteractions []Interaction  `json:"relevant_interactions"`
	RelatedConcepts      []string       `json:"related_concepts"`
	RelatedProjects      []string       `json:"related_projects"`
}

// IsEmpty reports whether retrieval produced nothing usable.
func (c *Context) IsEmpty() bool {
	return c == nil ||
		(c.DailySummary == nil && c.WeeklySummary == nil &&
			len(c.RelevantInteractions) == 0 &&
			len(c.RelatedConcepts) == 0 &&
			len(c.RelatedProjects) == 0)
}
