package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alex/internal/cortex"
)

// Per-item truncation budgets applied before prompting.
const (
	truncUserMessage   = 500
	truncAssistantResp = 1000
	truncDailyContent  = 1500
	truncWeeklyContent = 2000
)

const dailyPrompt = `You are compressing one day of conversation between a user and their assistant into a concise summary.

Interactions from %s:

%s

Write a summary of what was discussed and accomplished, then list the main topics.
Respond in exactly this format:

SUMMARY:
<2-4 sentences covering the day>

KEY_TOPICS:
<comma-separated list of topics>`

const weeklyPrompt = `You are compressing one week of daily summaries into a weekly overview.

Daily summaries for week %s:

%s

Write an overview of the week's themes, progress, and open threads, then list the main themes.
Respond in exactly this format:

SUMMARY:
<3-5 sentences covering the week>

KEY_THEMES:
<comma-separated list of themes>`

const monthlyPrompt = `You are compressing one month of weekly summaries into a monthly retrospective.

Weekly summaries for %s:

%s

Write a retrospective capturing the month's arc: what was pursued, what changed, what carried forward. Then list the dominant themes.
Respond in exactly this format:

SUMMARY:
<4-6 sentences covering the month>

KEY_THEMES:
<comma-separated list of themes>`

// SummarizerStore is the slice of the store the pipeline reads and writes.
type SummarizerStore interface {
	GetUnsummarizedDays(ctx context.Context, limit int) ([]time.Time, error)
	GetUnsummarizedWeeks(ctx context.Context, limit int) ([]string, error)
	GetUnsummarizedMonths(ctx context.Context, limit int) ([]string, error)
	GetInteractionsForDay(ctx context.Context, date time.Time) ([]Interaction, error)
	GetDailySummariesForWeek(ctx context.Context, weekID string) ([]DailySummary, error)
	GetWeeklySummariesForMonth(ctx context.Context, year, month int) ([]WeeklySummary, error)
	UpsertDailySummary(ctx context.Context, ds *DailySummary, embedding []float32) error
	UpsertWeeklySummary(ctx context.Context, ws *WeeklySummary, embedding []float32) error
	UpsertMonthlySummary(ctx context.Context, ms *MonthlySummary, embedding []float32) error
}

// TierResult reports one tier's batch outcome.
type TierResult struct {
	Processed int      `json:"processed"`
	Completed int      `json:"completed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// Summarizer runs the three-tier batch compression pipeline. Selection
// predicates make re-runs idempotent: a unit stops being unsummarized
// the moment its row is upserted.
type Summarizer struct {
	store    SummarizerStore
	chat     cortex.Chatter
	embedder cortex.Embedder
	log      *zap.Logger

	flashModel string
	proModel   string

	dailyBatch   int
	weeklyBatch  int
	monthlyBatch int
}

// NewSummarizer builds the pipeline. Daily and weekly tiers use the
// flash model; monthly uses pro.
func NewSummarizer(store SummarizerStore, chat cortex.Chatter, embedder cortex.Embedder,
	flashModel, proModel string, dailyBatch, weeklyBatch, monthlyBatch int, log *zap.Logger) *Summarizer {
	if log == nil {
		log = zap.NewNop()
	}
	if dailyBatch <= 0 {
		dailyBatch = 7
	}
	if weeklyBatch <= 0 {
		weeklyBatch = 4
	}
	if monthlyBatch <= 0 {
		monthlyBatch = 2
	}
	return &Summarizer{
		store:        store,
		chat:         chat,
		embedder:     embedder,
		log:          log.Named("summarizer"),
		flashModel:   flashModel,
		proModel:     proModel,
		dailyBatch:   dailyBatch,
		weeklyBatch:  weeklyBatch,
		monthlyBatch: monthlyBatch,
	}
}

// RunDaily summarizes up to the batch cap of unsummarized days.
func (s *Summarizer) RunDaily(ctx context.Context) (*TierResult, error) {
	res := &TierResult{}
	days, err := s.store.GetUnsummarizedDays(ctx, s.dailyBatch)
	if err != nil {
		return nil, fmt.Errorf("select unsummarized days: %w", err)
	}

	for _, day := range days {
		res.Processed++
		if err := s.summarizeDay(ctx, day); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", day.Format("2006-01-02"), err))
			continue
		}
		res.Completed++
	}
	s.logTier("daily", res)
	return res, nil
}

func (s *Summarizer) summarizeDay(ctx context.Context, day time.Time) error {
	interactions, err := s.store.GetInteractionsForDay(ctx, day)
	if err != nil {
		return err
	}
	if len(interactions) == 0 {
		return fmt.Errorf("no interactions on %s", day.Format("2006-01-02"))
	}

	var sb strings.Builder
	for _, in := range interactions {
		fmt.Fprintf(&sb, "[%s] User: %s\nAssistant: %s\n\n",
			in.Timestamp.Format("15:04"),
			truncate(in.UserMessage, truncUserMessage),
			truncate(in.AssistantResponse, truncAssistantResp))
	}

	prompt := fmt.Sprintf(dailyPrompt, day.Format("2006-01-02"), sb.String())
	text, err := s.chat.Complete(ctx, s.flashModel, "",
		[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
		cortex.GenOptions{Temperature: 0.3, MaxOutputTokens: 2048})
	if err != nil {
		return err
	}

	content, topics := parseSummaryResponse(text)
	ds := &DailySummary{
		Date:              DateOf(day),
		Content:           content,
		KeyTopics:         topics,
		TotalInteractions: len(interactions),
		ModelUsed:         s.flashModel,
	}
	return s.store.UpsertDailySummary(ctx, ds, s.embed(ctx, content))
}

// RunWeekly summarizes up to the batch cap of unsummarized weeks.
func (s *Summarizer) RunWeekly(ctx context.Context) (*TierResult, error) {
	res := &TierResult{}
	weeks, err := s.store.GetUnsummarizedWeeks(ctx, s.weeklyBatch)
	if err != nil {
		return nil, fmt.Errorf("select unsummarized weeks: %w", err)
	}

	for _, weekID := range weeks {
		res.Processed++
		if err := s.summarizeWeek(ctx, weekID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", weekID, err))
			continue
		}
		res.Completed++
	}
	s.logTier("weekly", res)
	return res, nil
}

func (s *Summarizer) summarizeWeek(ctx context.Context, weekID string) error {
	dailies, err := s.store.GetDailySummariesForWeek(ctx, weekID)
	if err != nil {
		return err
	}
	if len(dailies) == 0 {
		return fmt.Errorf("no daily summaries in %s", weekID)
	}

	year, week, err := ParseWeekID(weekID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	total := 0
	for _, d := range dailies {
		fmt.Fprintf(&sb, "%s (%d interactions):\n%s\n\n",
			d.Date.Format("2006-01-02"), d.TotalInteractions,
			truncate(d.Content, truncDailyContent))
		total += d.TotalInteractions
	}

	prompt := fmt.Sprintf(weeklyPrompt, weekID, sb.String())
	text, err := s.chat.Complete(ctx, s.flashModel, "",
		[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
		cortex.GenOptions{Temperature: 0.3, MaxOutputTokens: 3072})
	if err != nil {
		return err
	}

	content, themes := parseSummaryResponse(text)
	ws := &WeeklySummary{
		WeekID:            weekID,
		Year:              year,
		Week:              week,
		Content:           content,
		KeyThemes:         themes,
		SourceCount:       len(dailies),
		TotalInteractions: total,
		ModelUsed:         s.flashModel,
	}
	return s.store.UpsertWeeklySummary(ctx, ws, s.embed(ctx, content))
}

// RunMonthly summarizes up to the batch cap of unsummarized months.
func (s *Summarizer) RunMonthly(ctx context.Context) (*TierResult, error) {
	res := &TierResult{}
	months, err := s.store.GetUnsummarizedMonths(ctx, s.monthlyBatch)
	if err != nil {
		return nil, fmt.Errorf("select unsummarized months: %w", err)
	}

	for _, monthID := range months {
		res.Processed++
		if err := s.summarizeMonth(ctx, monthID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", monthID, err))
			continue
		}
		res.Completed++
	}
	s.logTier("monthly", res)
	return res, nil
}

func (s *Summarizer) summarizeMonth(ctx context.Context, monthID string) error {
	year, month, err := ParseMonthID(monthID)
	if err != nil {
		return err
	}
	weeklies, err := s.store.GetWeeklySummariesForMonth(ctx, year, month)
	if err != nil {
		return err
	}
	if len(weeklies) == 0 {
		return fmt.Errorf("no weekly summaries in %s", monthID)
	}

	var sb strings.Builder
	for _, w := range weeklies {
		fmt.Fprintf(&sb, "%s:\n%s\n\n", w.WeekID, truncate(w.Content, truncWeeklyContent))
	}

	prompt := fmt.Sprintf(monthlyPrompt, monthID, sb.String())
	text, err := s.chat.Complete(ctx, s.proModel, "",
		[]cortex.Message{{Role: cortex.RoleUser, Content: prompt}},
		cortex.GenOptions{Temperature: 0.4, MaxOutputTokens: 4096})
	if err != nil {
		return err
	}

	content, themes := parseSummaryResponse(text)
	ms := &MonthlySummary{
		MonthID:     monthID,
		Year:        year,
		Month:       month,
		Content:     content,
		KeyThemes:   themes,
		SourceCount: len(weeklies),
		ModelUsed:   s.proModel,
	}
	return s.store.UpsertMonthlySummary(ctx, ms, s.embed(ctx, content))
}

// RunAll runs daily then weekly then monthly, strictly sequential so
// each tier sees the rows the previous one just wrote.
func (s *Summarizer) RunAll(ctx context.Context) map[string]*TierResult {
	results := make(map[string]*TierResult, 3)

	daily, err := s.RunDaily(ctx)
	if err != nil {
		daily = &TierResult{Errors: []string{err.Error()}}
	}
	results["daily"] = daily

	weekly, err := s.RunWeekly(ctx)
	if err != nil {
		weekly = &TierResult{Errors: []string{err.Error()}}
	}
	results["weekly"] = weekly

	monthly, err := s.RunMonthly(ctx)
	if err != nil {
		monthly = &TierResult{Errors: []string{err.Error()}}
	}
	results["monthly"] = monthly

	return results
}

// embed produces the summary embedding; failures degrade to an
// unembedded row rather than failing the tier.
func (s *Summarizer) embed(ctx context.Context, content string) []float32 {
	if s.embedder == nil || content == "" {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.log.Warn("summary embedding failed", zap.Error(err))
		return nil
	}
	return vec
}

func (s *Summarizer) logTier(tier string, res *TierResult) {
	s.log.Info("tier complete",
		zap.String("tier", tier),
		zap.Int("processed", res.Processed),
		zap.Int("completed", res.Completed),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)))
}

// parseSummaryResponse splits model output on the KEY_TOPICS or
// KEY_THEMES marker. Missing-marker output is treated as summary-only
// with no labels; the tier never fails on parse.
func parseSummaryResponse(text string) (summary string, labels []string) {
	text = strings.TrimSpace(text)

	marker := "KEY_TOPICS:"
	idx := strings.Index(text, marker)
	if idx < 0 {
		marker = "KEY_THEMES:"
		idx = strings.Index(text, marker)
	}

	var labelPart string
	if idx >= 0 {
		labelPart = text[idx+len(marker):]
		text = text[:idx]
	}

	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "SUMMARY:"))
	summary = strings.TrimSpace(summary)

	for _, raw := range strings.FieldsFunc(labelPart, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		label := strings.Trim(strings.TrimSpace(raw), "[]-* ")
		if label != "" {
			labels = append(labels, label)
		}
	}
	return summary, labels
}

// ParseWeekID parses "YYYY-Wnn" into year and ISO week.
func ParseWeekID(weekID string) (year, week int, err error) {
	parts := strings.SplitN(weekID, "-W", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid week id %q", weekID)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid week id %q", weekID)
	}
	week, err = strconv.Atoi(parts[1])
	if err != nil || week < 1 || week > 53 {
		return 0, 0, fmt.Errorf("invalid week id %q", weekID)
	}
	return year, week, nil
}

// ParseMonthID parses "YYYY-M" into year and month.
func ParseMonthID(monthID string) (year, month int, err error) {
	parts := strings.SplitN(monthID, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid month id %q", monthID)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month id %q", monthID)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month id %q", monthID)
	}
	return year, month, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
