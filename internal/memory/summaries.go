package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
)

// WeekIDOf formats the ISO week identifier "YYYY-Wnn" for a date.
func WeekIDOf(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// MonthIDOf formats the month identifier "YYYY-M" (no zero padding).
func MonthIDOf(t time.Time) string {
	return fmt.Sprintf("%d-%d", t.Year(), int(t.Month()))
}

const weekIDExpr = `d.year::text || '-W' || LPAD(d.week::text, 2, '0')`

// GetDailySummary returns the summary for a date, or nil if absent.
func (s *Store) GetDailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	var ds DailySummary
	err := s.pool.QueryRow(ctx,
		`SELECT date, content, key_topics, total_interactions, COALESCE(model_used, ''), generated_at
		 FROM daily_summaries WHERE date = $1`,
		DateOf(date),
	).Scan(&ds.Date, &ds.Content, &ds.KeyTopics, &ds.TotalInteractions, &ds.ModelUsed, &ds.GeneratedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get daily summary: %w", err)
	}
	return &ds, nil
}

// GetWeeklySummary returns the summary for a week id, or nil if absent.
func (s *Store) GetWeeklySummary(ctx context.Context, weekID string) (*WeeklySummary, error) {
	var ws WeeklySummary
	err := s.pool.QueryRow(ctx,
		`SELECT week_id, year, week, content, key_themes, source_count,
		        total_interactions, COALESCE(model_used, ''), generated_at
		 FROM weekly_summaries WHERE week_id = $1`,
		weekID,
	).Scan(&ws.WeekID, &ws.Year, &ws.Week, &ws.Content, &ws.KeyThemes,
		&ws.SourceCount, &ws.TotalInteractions, &ws.ModelUsed, &ws.GeneratedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get weekly summary: %w", err)
	}
	return &ws, nil
}

// GetMonthlySummary returns the summary for a month id, or nil if absent.
func (s *Store) GetMonthlySummary(ctx context.Context, monthID string) (*MonthlySummary, error) {
	var ms MonthlySummary
	err := s.pool.QueryRow(ctx,
		`SELECT month_id, year, month, content, key_themes, source_count,
		        COALESCE(model_used, ''), generated_at
		 FROM monthly_summaries WHERE month_id = $1`,
		monthID,
	).Scan(&ms.MonthID, &ms.Year, &ms.Month, &ms.Content, &ms.KeyThemes,
		&ms.SourceCount, &ms.ModelUsed, &ms.GeneratedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get monthly summary: %w", err)
	}
	return &ms, nil
}

// GetUnsummarizedDays returns dates that have interactions but no daily
// summary, oldest first.
func (s *Store) GetUnsummarizedDays(ctx context.Context, limit int) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT date FROM interactions
		 WHERE date NOT IN (SELECT date FROM daily_summaries)
		 ORDER BY date
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("unsummarized days: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// GetUnsummarizedWeeks returns ISO weeks that have daily summaries but
// no weekly summary, oldest first.
func (s *Store) GetUnsummarizedWeeks(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT `+weekIDExpr+` AS week_id, d.year, d.week
		 FROM daily_summaries ds
		 JOIN days d ON d.date = ds.date
		 WHERE `+weekIDExpr+` NOT IN (SELECT week_id FROM weekly_summaries)
		 ORDER BY d.year, d.week
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("unsummarized weeks: %w", err)
	}
	defer rows.Close()

	var weeks []string
	for rows.Next() {
		var id string
		var year, week int
		if err := rows.Scan(&id, &year, &week); err != nil {
			return nil, err
		}
		weeks = append(weeks, id)
	}
	return weeks, rows.Err()
}

// GetUnsummarizedMonths returns calendar months that have weekly
// summaries but no monthly summary, oldest first.
func (s *Store) GetUnsummarizedMonths(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT d.year::text || '-' || d.month::text AS month_id, d.year, d.month
		 FROM days d
		 JOIN daily_summaries ds ON ds.date = d.date
		 JOIN weekly_summaries ws ON ws.week_id = `+weekIDExpr+`
		 WHERE d.year::text || '-' || d.month::text NOT IN (SELECT month_id FROM monthly_summaries)
		 ORDER BY d.year, d.month
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("unsummarized months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var id string
		var year, month int
		if err := rows.Scan(&id, &year, &month); err != nil {
			return nil, err
		}
		months = append(months, id)
	}
	return months, rows.Err()
}

// GetInteractionsForDay returns every interaction on a date, in order.
func (s *Store) GetInteractionsForDay(ctx context.Context, date time.Time) ([]Interaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, date, timestamp, user_message, assistant_response,
		        COALESCE(intent, ''), complexity_score, COALESCE(model_used, '')
		 FROM interactions
		 WHERE date = $1
		 ORDER BY timestamp`,
		DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("interactions for day: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows, false)
}

// GetDailySummariesForWeek returns the daily summaries whose dates fall
// inside an ISO week, in date order.
func (s *Store) GetDailySummariesForWeek(ctx context.Context, weekID string) ([]DailySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT ds.date, ds.content, ds.key_topics, ds.total_interactions,
		        COALESCE(ds.model_used, ''), ds.generated_at
		 FROM daily_summaries ds
		 JOIN days d ON d.date = ds.date
		 WHERE `+weekIDExpr+` = $1
		 ORDER BY ds.date`,
		weekID)
	if err != nil {
		return nil, fmt.Errorf("daily summaries for week: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var ds DailySummary
		if err := rows.Scan(&ds.Date, &ds.Content, &ds.KeyTopics,
			&ds.TotalInteractions, &ds.ModelUsed, &ds.GeneratedAt); err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// GetWeeklySummariesForMonth returns the weekly summaries whose weeks
// contain days in the given calendar month.
func (s *Store) GetWeeklySummariesForMonth(ctx context.Context, year, month int) ([]WeeklySummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ws.week_id, ws.year, ws.week, ws.content, ws.key_themes,
		        ws.source_count, ws.total_interactions, COALESCE(ws.model_used, ''), ws.generated_at
		 FROM weekly_summaries ws
		 JOIN days d ON ws.week_id = `+weekIDExpr+`
		 WHERE d.year = $1 AND d.month = $2
		 ORDER BY ws.week_id`,
		year, month)
	if err != nil {
		return nil, fmt.Errorf("weekly summaries for month: %w", err)
	}
	defer rows.Close()

	var out []WeeklySummary
	for rows.Next() {
		var ws WeeklySummary
		if err := rows.Scan(&ws.WeekID, &ws.Year, &ws.Week, &ws.Content, &ws.KeyThemes,
			&ws.SourceCount, &ws.TotalInteractions, &ws.ModelUsed, &ws.GeneratedAt); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// UpsertDailySummary writes or overwrites the summary row for a date.
func (s *Store) UpsertDailySummary(ctx context.Context, ds *DailySummary, embedding []float32) error {
	if _, err := s.ensureDay(ctx, ds.Date); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO daily_summaries
		   (date, content, key_topics, total_interactions, model_used, embedding, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (date) DO UPDATE SET
		   content = EXCLUDED.content,
		   key_topics = EXCLUDED.key_topics,
		   total_interactions = EXCLUDED.total_interactions,
		   model_used = EXCLUDED.model_used,
		   embedding = EXCLUDED.embedding,
		   generated_at = now()`,
		DateOf(ds.Date), ds.Content, ds.KeyTopics, ds.TotalInteractions,
		nullable(ds.ModelUsed), vecOrNil(embedding))
	if err != nil {
		return fmt.Errorf("upsert daily summary: %w", err)
	}
	return nil
}

// UpsertWeeklySummary writes or overwrites the summary row for a week.
func (s *Store) UpsertWeeklySummary(ctx context.Context, ws *WeeklySummary, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO weekly_summaries
		   (week_id, year, week, content, key_themes, source_count,
		    total_interactions, model_used, embedding, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (week_id) DO UPDATE SET
		   content = EXCLUDED.content,
		   key_themes = EXCLUDED.key_themes,
		   source_count = EXCLUDED.source_count,
		   total_interactions = EXCLUDED.total_interactions,
		   model_used = EXCLUDED.model_used,
		   embedding = EXCLUDED.embedding,
		   generated_at = now()`,
		ws.WeekID, ws.Year, ws.Week, ws.Content, ws.KeyThemes, ws.SourceCount,
		ws.TotalInteractions, nullable(ws.ModelUsed), vecOrNil(embedding))
	if err != nil {
		return fmt.Errorf("upsert weekly summary: %w", err)
	}
	return nil
}

// UpsertMonthlySummary writes or overwrites the summary row for a month.
func (s *Store) UpsertMonthlySummary(ctx context.Context, ms *MonthlySummary, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monthly_summaries
		   (month_id, year, month, content, key_themes, source_count,
		    model_used, embedding, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (month_id) DO UPDATE SET
		   content = EXCLUDED.content,
		   key_themes = EXCLUDED.key_themes,
		   source_count = EXCLUDED.source_count,
		   model_used = EXCLUDED.model_used,
		   embedding = EXCLUDED.embedding,
		   generated_at = now()`,
		ms.MonthID, ms.Year, ms.Month, ms.Content, ms.KeyThemes, ms.SourceCount,
		nullable(ms.ModelUsed), vecOrNil(embedding))
	if err != nil {
		return fmt.Errorf("upsert monthly summary: %w", err)
	}
	return nil
}

func vecOrNil(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
