package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"alex/internal/cortex"
)

// fakeStore is an in-memory stand-in for the Postgres store, good
// enough for the retriever and summarizer contracts.
type fakeStore struct {
	interactions map[string][]Interaction // keyed by date "2006-01-02"
	dailies      map[string]*DailySummary
	weeklies     map[string]*WeeklySummary
	monthlies    map[string]*MonthlySummary
	concepts     []string
	projects     []string
	searchHits   []Interaction

	// failAll makes every method error, for fail-soft tests.
	failAll bool

	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		interactions: make(map[string][]Interaction),
		dailies:      make(map[string]*DailySummary),
		weeklies:     make(map[string]*WeeklySummary),
		monthlies:    make(map[string]*MonthlySummary),
	}
}

func dateKey(t time.Time) string { return DateOf(t).Format("2006-01-02") }

var errFakeDown = errors.New("store unavailable")

func (f *fakeStore) GetDailySummary(_ context.Context, date time.Time) (*DailySummary, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.dailies[dateKey(date)], nil
}

func (f *fakeStore) GetWeeklySummary(_ context.Context, weekID string) (*WeeklySummary, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.weeklies[weekID], nil
}

func (f *fakeStore) GetMonthlySummary(_ context.Context, monthID string) (*MonthlySummary, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.monthlies[monthID], nil
}

func (f *fakeStore) GetRecentInteractions(_ context.Context, date time.Time, limit int) ([]Interaction, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	ins := f.interactions[dateKey(date)]
	if len(ins) > limit {
		ins = ins[:limit]
	}
	return ins, nil
}

func (f *fakeStore) SemanticSearch(_ context.Context, _ []float32, topK int, minScore float64) ([]Interaction, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	var out []Interaction
	for _, hit := range f.searchHits {
		if hit.Similarity >= minScore && len(out) < topK {
			out = append(out, hit)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRelatedConcepts(_ context.Context, _ []string, _ int) ([]string, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.concepts, nil
}

func (f *fakeStore) FindProjects(_ context.Context, _ []string, _ int) ([]string, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.projects, nil
}

func (f *fakeStore) GetUnsummarizedDays(_ context.Context, limit int) ([]time.Time, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	var days []time.Time
	for key, ins := range f.interactions {
		if len(ins) == 0 {
			continue
		}
		if _, ok := f.dailies[key]; !ok {
			d, _ := time.Parse("2006-01-02", key)
			days = append(days, d)
		}
	}
	if len(days) > limit {
		days = days[:limit]
	}
	return days, nil
}

func (f *fakeStore) GetUnsummarizedWeeks(_ context.Context, limit int) ([]string, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	seen := make(map[string]bool)
	var weeks []string
	for key := range f.dailies {
		d, _ := time.Parse("2006-01-02", key)
		id := WeekIDOf(d)
		if _, ok := f.weeklies[id]; !ok && !seen[id] {
			seen[id] = true
			weeks = append(weeks, id)
		}
	}
	if len(weeks) > limit {
		weeks = weeks[:limit]
	}
	return weeks, nil
}

func (f *fakeStore) GetUnsummarizedMonths(_ context.Context, limit int) ([]string, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	seen := make(map[string]bool)
	var months []string
	for key := range f.dailies {
		d, _ := time.Parse("2006-01-02", key)
		if _, ok := f.weeklies[WeekIDOf(d)]; !ok {
			continue
		}
		id := MonthIDOf(d)
		if _, ok := f.monthlies[id]; !ok && !seen[id] {
			seen[id] = true
			months = append(months, id)
		}
	}
	if len(months) > limit {
		months = months[:limit]
	}
	return months, nil
}

func (f *fakeStore) GetInteractionsForDay(_ context.Context, date time.Time) ([]Interaction, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	return f.interactions[dateKey(date)], nil
}

func (f *fakeStore) GetDailySummariesForWeek(_ context.Context, weekID string) ([]DailySummary, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	var out []DailySummary
	for key, ds := range f.dailies {
		d, _ := time.Parse("2006-01-02", key)
		if WeekIDOf(d) == weekID {
			out = append(out, *ds)
		}
	}
	return out, nil
}

func (f *fakeStore) GetWeeklySummariesForMonth(_ context.Context, year, month int) ([]WeeklySummary, error) {
	if f.failAll {
		return nil, errFakeDown
	}
	var out []WeeklySummary
	for key, ds := range f.dailies {
		d, _ := time.Parse("2006-01-02", key)
		if d.Year() != year || int(d.Month()) != month {
			continue
		}
		if ws, ok := f.weeklies[WeekIDOf(d)]; ok {
			found := false
			for _, existing := range out {
				if existing.WeekID == ws.WeekID {
					found = true
					break
				}
			}
			if !found {
				out = append(out, *ws)
			}
		}
		_ = ds
	}
	return out, nil
}

func (f *fakeStore) UpsertDailySummary(_ context.Context, ds *DailySummary, _ []float32) error {
	if f.failAll {
		return errFakeDown
	}
	f.upserts++
	f.dailies[dateKey(ds.Date)] = ds
	return nil
}

func (f *fakeStore) UpsertWeeklySummary(_ context.Context, ws *WeeklySummary, _ []float32) error {
	if f.failAll {
		return errFakeDown
	}
	f.upserts++
	f.weeklies[ws.WeekID] = ws
	return nil
}

func (f *fakeStore) UpsertMonthlySummary(_ context.Context, ms *MonthlySummary, _ []float32) error {
	if f.failAll {
		return errFakeDown
	}
	f.upserts++
	f.monthlies[ms.MonthID] = ms
	return nil
}

// scriptedChatter returns canned responses in order, then repeats the
// last one. A nil script errors every call.
type scriptedChatter struct {
	responses []string
	calls     int
	err       error
}

func (c *scriptedChatter) Complete(_ context.Context, _, _ string, _ []cortex.Message, _ cortex.GenOptions) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	i := c.calls - 1
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i], nil
}

// unitEmbedder returns a constant vector.
type unitEmbedder struct {
	calls int
	err   error
}

func (e *unitEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, 768)
	vec[0] = 1
	return vec, nil
}

func (e *unitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := e.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *unitEmbedder) Dimensions() int { return 768 }
func (e *unitEmbedder) Name() string    { return "fake:unit" }

func seedDay(f *fakeStore, date time.Time, n int) {
	key := dateKey(date)
	for i := 0; i < n; i++ {
		f.interactions[key] = append(f.interactions[key], Interaction{
			ID:                int64(len(f.interactions[key]) + 1),
			UserID:            "u1",
			Date:              DateOf(date),
			Timestamp:         date.Add(time.Duration(i) * time.Hour),
			UserMessage:       fmt.Sprintf("question %d", i),
			AssistantResponse: fmt.Sprintf("a sufficiently long answer %d", i),
		})
	}
}
