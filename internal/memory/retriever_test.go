package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time {
	return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
}

func newTestRetriever(f *fakeStore, e *unitEmbedder) *Retriever {
	r := NewRetriever(f, e, 5, 0.7, nil)
	r.now = fixedNow
	return r
}

func TestRetrieveComposesContext(t *testing.T) {
	f := newFakeStore()
	today := fixedNow()
	f.dailies[dateKey(today)] = &DailySummary{Date: DateOf(today), Content: "today so far"}
	f.weeklies[WeekIDOf(today)] = &WeeklySummary{WeekID: WeekIDOf(today), Content: "the week"}
	f.searchHits = []Interaction{
		{ID: 1, UserMessage: "old question", Similarity: 0.9},
		{ID: 2, UserMessage: "older question", Similarity: 0.5},
	}
	f.concepts = []string{"pgvector", "retrieval"}
	f.projects = []string{"alex"}

	r := newTestRetriever(f, &unitEmbedder{})
	mc := r.Retrieve(context.Background(), "how did we rank search results last time?",
		[]string{"search"}, []string{"alex"})

	require.NotNil(t, mc.DailySummary)
	require.NotNil(t, mc.WeeklySummary)
	require.Len(t, mc.RelevantInteractions, 1, "below-threshold hit must be filtered")
	assert.Equal(t, int64(1), mc.RelevantInteractions[0].ID)
	assert.Equal(t, []string{"pgvector", "retrieval"}, mc.RelatedConcepts)
	assert.Equal(t, []string{"alex"}, mc.RelatedProjects)
	assert.False(t, mc.IsEmpty())
}

func TestRetrieveFallsBackToRecentInteractions(t *testing.T) {
	f := newFakeStore()
	seedDay(f, fixedNow(), 7)

	r := newTestRetriever(f, &unitEmbedder{})
	mc := r.Retrieve(context.Background(), "", nil, nil)

	assert.Nil(t, mc.DailySummary)
	assert.Len(t, mc.RelevantInteractions, 5, "fallback is capped at 5")
}

func TestRetrieveSkipsSemanticSearchForShortMessages(t *testing.T) {
	f := newFakeStore()
	f.searchHits = []Interaction{{ID: 1, Similarity: 0.99}}
	e := &unitEmbedder{}

	r := newTestRetriever(f, e)
	mc := r.Retrieve(context.Background(), "hi", nil, nil)

	assert.Zero(t, e.calls, "short messages must not be embedded")
	assert.Empty(t, mc.RelevantInteractions)
}

func TestRetrieveFailSoft(t *testing.T) {
	f := newFakeStore()
	f.failAll = true

	r := newTestRetriever(f, &unitEmbedder{})
	mc := r.Retrieve(context.Background(), "a long enough question about things",
		[]string{"topic"}, []string{"entity"})

	require.NotNil(t, mc, "retriever must return a context even with the store down")
	assert.True(t, mc.IsEmpty())
}

func TestAdaptiveLevel(t *testing.T) {
	today := fixedNow()
	tests := []struct {
		name string
		d    time.Time
		want SummaryLevel
	}{
		{"today", today, LevelRaw},
		{"yesterday", today.AddDate(0, 0, -1), LevelRaw},
		{"three days ago", today.AddDate(0, 0, -3), LevelDaily},
		{"one week ago", today.AddDate(0, 0, -7), LevelDaily},
		{"two weeks ago", today.AddDate(0, 0, -14), LevelWeekly},
		{"thirty days ago", today.AddDate(0, 0, -30), LevelWeekly},
		{"two months ago", today.AddDate(0, -2, 0), LevelMonthly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdaptiveLevel(tt.d, today); got != tt.want {
				t.Errorf("AdaptiveLevel(%s) = %s, want %s", tt.d.Format("2006-01-02"), got, tt.want)
			}
		})
	}
}

func TestNormalizeConcept(t *testing.T) {
	tests := map[string]string{
		"Memory Retrieval": "memory_retrieval",
		"  pgvector ":      "pgvector",
		"ALEX":             "alex",
	}
	for in, want := range tests {
		if got := NormalizeConcept(in); got != want {
			t.Errorf("NormalizeConcept(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2026, 8, 24, 23, 59, 0, 0, time.UTC)
	want := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, DateOf(ts))
}
