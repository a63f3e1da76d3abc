package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryReply = `SUMMARY:
Worked through the memory retrieval design and fixed the search ranking.

KEY_TOPICS:
memory retrieval, search ranking, pgvector`

func newTestSummarizer(f *fakeStore, chat *scriptedChatter) *Summarizer {
	return NewSummarizer(f, chat, &unitEmbedder{}, "flash-model", "pro-model", 7, 4, 2, nil)
}

func TestDailyTierSummarizesEachDay(t *testing.T) {
	f := newFakeStore()
	seedDay(f, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), 3)
	seedDay(f, time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC), 2)

	s := newTestSummarizer(f, &scriptedChatter{responses: []string{summaryReply}})

	res, err := s.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Completed)
	assert.Empty(t, res.Errors)

	ds := f.dailies["2026-08-20"]
	require.NotNil(t, ds)
	assert.Equal(t, 3, ds.TotalInteractions)
	assert.Equal(t, "flash-model", ds.ModelUsed)
	assert.Contains(t, ds.Content, "memory retrieval design")
	assert.Equal(t, []string{"memory retrieval", "search ranking", "pgvector"}, ds.KeyTopics)
}

func TestDailyTierIsIdempotent(t *testing.T) {
	f := newFakeStore()
	seedDay(f, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), 3)
	s := newTestSummarizer(f, &scriptedChatter{responses: []string{summaryReply}})

	_, err := s.RunDaily(context.Background())
	require.NoError(t, err)
	writesAfterFirst := f.upserts

	res, err := s.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed, "second run should find nothing unsummarized")
	assert.Equal(t, writesAfterFirst, f.upserts, "second run must produce zero writes")
}

func TestDailyTierCoverage(t *testing.T) {
	f := newFakeStore()
	for day := 1; day <= 5; day++ {
		seedDay(f, time.Date(2026, 8, day, 9, 0, 0, 0, time.UTC), 1)
	}
	s := newTestSummarizer(f, &scriptedChatter{responses: []string{summaryReply}})

	_, err := s.RunDaily(context.Background())
	require.NoError(t, err)

	remaining, err := f.GetUnsummarizedDays(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, remaining, "no date with interactions may remain unsummarized")
}

func TestDailyTierModelFailureIsRecorded(t *testing.T) {
	f := newFakeStore()
	seedDay(f, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), 1)
	s := newTestSummarizer(f, &scriptedChatter{err: context.DeadlineExceeded})

	res, err := s.RunDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Completed)
	assert.Len(t, res.Errors, 1)
	assert.Empty(t, f.dailies)
}

func TestFullPipelineOrdering(t *testing.T) {
	f := newFakeStore()
	seedDay(f, time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC), 2)

	s := newTestSummarizer(f, &scriptedChatter{responses: []string{summaryReply}})

	results := s.RunAll(context.Background())

	// Daily ran first, so weekly saw its row; weekly ran before monthly.
	require.Equal(t, 1, results["daily"].Completed)
	require.Equal(t, 1, results["weekly"].Completed)
	require.Equal(t, 1, results["monthly"].Completed)

	ws := f.weeklies[WeekIDOf(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))]
	require.NotNil(t, ws)
	assert.Equal(t, 1, ws.SourceCount)
	assert.Equal(t, 2, ws.TotalInteractions)
	assert.Equal(t, "flash-model", ws.ModelUsed)

	ms := f.monthlies["2026-8"]
	require.NotNil(t, ms)
	assert.Equal(t, "pro-model", ms.ModelUsed)
}

func TestParseSummaryResponse(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantSummary string
		wantLabels  []string
	}{
		{
			name:        "topics marker",
			in:          "SUMMARY:\nA productive day.\n\nKEY_TOPICS:\nalpha, beta",
			wantSummary: "A productive day.",
			wantLabels:  []string{"alpha", "beta"},
		},
		{
			name:        "themes marker with list noise",
			in:          "The week went well.\nKEY_THEMES:\n- [alpha]\n- beta\n\n",
			wantSummary: "The week went well.",
			wantLabels:  []string{"alpha", "beta"},
		},
		{
			name:        "missing marker",
			in:          "Just a summary with no labels.",
			wantSummary: "Just a summary with no labels.",
			wantLabels:  nil,
		},
		{
			name:        "empty labels filtered",
			in:          "S.\nKEY_TOPICS:\n, ,\n",
			wantSummary: "S.",
			wantLabels:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, labels := parseSummaryResponse(tt.in)
			if summary != tt.wantSummary {
				t.Errorf("summary = %q, want %q", summary, tt.wantSummary)
			}
			if diff := cmp.Diff(tt.wantLabels, labels); diff != "" {
				t.Errorf("labels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseWeekID(t *testing.T) {
	year, week, err := ParseWeekID("2026-W03")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 3, week)

	for _, bad := range []string{"2026", "2026-W", "2026-W99", "xx-W01"} {
		if _, _, err := ParseWeekID(bad); err == nil {
			t.Errorf("ParseWeekID(%q) should fail", bad)
		}
	}
}

func TestParseMonthID(t *testing.T) {
	year, month, err := ParseMonthID("2026-8")
	require.NoError(t, err)
	assert.Equal(t, 2026, year)
	assert.Equal(t, 8, month)

	for _, bad := range []string{"2026", "2026-13", "2026-0", "x-1"} {
		if _, _, err := ParseMonthID(bad); err == nil {
			t.Errorf("ParseMonthID(%q) should fail", bad)
		}
	}
}

func TestWeekAndMonthIDFormat(t *testing.T) {
	d := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-W02", WeekIDOf(d))
	assert.Equal(t, "2026-1", MonthIDOf(d))
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := truncate("0123456789abc", 10)
	if long != "0123456789..." {
		t.Errorf("truncate = %q", long)
	}
}
