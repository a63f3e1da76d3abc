package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// StoreCodeChange appends a self-modification record and links concepts
// derived from the modified file paths.
func (s *Store) StoreCodeChange(ctx context.Context, cc *CodeChange) (int64, error) {
	if err := s.EnsureUser(ctx, cc.UserID); err != nil {
		return 0, err
	}
	if cc.Timestamp.IsZero() {
		cc.Timestamp = time.Now().UTC()
	}
	date, err := s.ensureDay(ctx, cc.Timestamp)
	if err != nil {
		return 0, err
	}

	var related any
	if cc.RelatedInteractionID > 0 {
		related = cc.RelatedInteractionID
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO code_changes
		   (user_id, date, timestamp, files_modified, description, reasoning,
		    change_type, commit_sha, related_interaction_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		cc.UserID, date, cc.Timestamp, cc.FilesModified, cc.Description,
		nullable(cc.Reasoning), cc.ChangeType, nullable(cc.CommitSHA), related,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store code change: %w", err)
	}

	if err := s.linkCodeChangeConcepts(ctx, id, cc.FilesModified); err != nil {
		s.log.Warn("code change concept linking failed", zap.Int64("code_change_id", id), zap.Error(err))
	}
	return id, nil
}

// linkCodeChangeConcepts derives concept names from file basenames.
func (s *Store) linkCodeChangeConcepts(ctx context.Context, codeChangeID int64, files []string) error {
	for _, path := range files {
		base := filepath.Base(path)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		if name == "" {
			continue
		}
		var conceptID int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO concepts (name, normalized_name, mention_count)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (name) DO UPDATE SET mention_count = concepts.mention_count + 1
			 RETURNING id`,
			name, NormalizeConcept(name),
		).Scan(&conceptID)
		if err != nil {
			return fmt.Errorf("upsert concept %q: %w", name, err)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO code_change_concepts (code_change_id, concept_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			codeChangeID, conceptID)
		if err != nil {
			return fmt.Errorf("link concept %q: %w", name, err)
		}
	}
	return nil
}

// GetRecentCodeChanges returns a user's latest code changes.
func (s *Store) GetRecentCodeChanges(ctx context.Context, userID string, limit int) ([]CodeChange, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, timestamp, files_modified, description,
		        COALESCE(reasoning, ''), change_type, COALESCE(commit_sha, ''),
		        COALESCE(related_interaction_id, 0)
		 FROM code_changes
		 WHERE user_id = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent code changes: %w", err)
	}
	defer rows.Close()

	var out []CodeChange
	for rows.Next() {
		var cc CodeChange
		if err := rows.Scan(&cc.ID, &cc.UserID, &cc.Timestamp, &cc.FilesModified,
			&cc.Description, &cc.Reasoning, &cc.ChangeType, &cc.CommitSHA,
			&cc.RelatedInteractionID); err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// StoreTrade appends a trade audit row.
func (s *Store) StoreTrade(ctx context.Context, tr *Trade) error {
	if err := s.EnsureUser(ctx, tr.UserID); err != nil {
		return err
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades
		   (trade_id, user_id, timestamp, symbol, action, quantity, price,
		    instrument_type, option_symbol, account, mode, order_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		tr.TradeID, tr.UserID, tr.Timestamp, tr.Symbol, tr.Action, tr.Quantity,
		tr.Price, tr.InstrumentType, nullable(tr.OptionSymbol), tr.Account,
		tr.Mode, nullable(tr.OrderID), tr.Status)
	if err != nil {
		return fmt.Errorf("store trade: %w", err)
	}
	return nil
}

// HealthCheck returns per-table row counts and the pgvector version.
func (s *Store) HealthCheck(ctx context.Context) (map[string]any, error) {
	health := map[string]any{"status": "healthy"}

	tables := []string{
		"users", "days", "interactions", "concepts",
		"daily_summaries", "weekly_summaries", "monthly_summaries",
		"code_changes", "projects", "trades",
	}
	counts := make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return map[string]any{"status": "unhealthy", "error": err.Error()}, err
		}
		counts[table] = n
	}
	health["tables"] = counts

	var version string
	err := s.pool.QueryRow(ctx,
		`SELECT extversion FROM pg_extension WHERE extname = 'vector'`,
	).Scan(&version)
	if err != nil {
		health["pgvector"] = "missing"
	} else {
		health["pgvector"] = version
	}
	return health, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
