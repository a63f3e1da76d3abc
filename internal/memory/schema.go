package memory

import (
	"context"
	"fmt"
)

// schema is the authoritative DDL. Every statement is idempotent so
// Migrate can run on every boot. Vector columns must match the
// configured embedding dimensions (768).
var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS days (
		date    DATE PRIMARY KEY,
		year    INT NOT NULL,
		month   INT NOT NULL,
		day     INT NOT NULL,
		week    INT NOT NULL,
		weekday INT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS interactions (
		id                 BIGSERIAL PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users(user_id),
		date               DATE NOT NULL REFERENCES days(date),
		timestamp          TIMESTAMPTZ NOT NULL DEFAULT now(),
		user_message       TEXT NOT NULL,
		assistant_response TEXT NOT NULL,
		intent             TEXT,
		complexity_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
		model_used         TEXT,
		embedding          vector(768)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_date ON interactions(date)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_embedding
		ON interactions USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

	`CREATE TABLE IF NOT EXISTS concepts (
		id              BIGSERIAL PRIMARY KEY,
		name            TEXT NOT NULL UNIQUE,
		normalized_name TEXT NOT NULL,
		first_mentioned TIMESTAMPTZ NOT NULL DEFAULT now(),
		mention_count   INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_concepts_normalized ON concepts(normalized_name)`,

	`CREATE TABLE IF NOT EXISTS interaction_concepts (
		interaction_id BIGINT NOT NULL REFERENCES interactions(id),
		concept_id     BIGINT NOT NULL REFERENCES concepts(id),
		PRIMARY KEY (interaction_id, concept_id)
	)`,

	`CREATE TABLE IF NOT EXISTS daily_summaries (
		date               DATE PRIMARY KEY REFERENCES days(date),
		content            TEXT NOT NULL,
		key_topics         TEXT[] NOT NULL DEFAULT '{}',
		total_interactions INT NOT NULL DEFAULT 0,
		model_used         TEXT,
		embedding          vector(768),
		generated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_summaries_embedding
		ON daily_summaries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

	`CREATE TABLE IF NOT EXISTS weekly_summaries (
		week_id            TEXT PRIMARY KEY,
		year               INT NOT NULL,
		week               INT NOT NULL,
		content            TEXT NOT NULL,
		key_themes         TEXT[] NOT NULL DEFAULT '{}',
		source_count       INT NOT NULL DEFAULT 0,
		total_interactions INT NOT NULL DEFAULT 0,
		model_used         TEXT,
		embedding          vector(768),
		generated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_weekly_summaries_embedding
		ON weekly_summaries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

	`CREATE TABLE IF NOT EXISTS monthly_summaries (
		month_id     TEXT PRIMARY KEY,
		year         INT NOT NULL,
		month        INT NOT NULL,
		content      TEXT NOT NULL,
		key_themes   TEXT[] NOT NULL DEFAULT '{}',
		source_count INT NOT NULL DEFAULT 0,
		model_used   TEXT,
		embedding    vector(768),
		generated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS code_changes (
		id                     BIGSERIAL PRIMARY KEY,
		user_id                TEXT NOT NULL REFERENCES users(user_id),
		date                   DATE NOT NULL REFERENCES days(date),
		timestamp              TIMESTAMPTZ NOT NULL DEFAULT now(),
		files_modified         TEXT[] NOT NULL DEFAULT '{}',
		description            TEXT NOT NULL,
		reasoning              TEXT,
		change_type            TEXT NOT NULL DEFAULT 'other',
		commit_sha             TEXT,
		related_interaction_id BIGINT REFERENCES interactions(id)
	)`,

	`CREATE TABLE IF NOT EXISTS code_change_concepts (
		code_change_id BIGINT NOT NULL REFERENCES code_changes(id),
		concept_id     BIGINT NOT NULL REFERENCES concepts(id),
		PRIMARY KEY (code_change_id, concept_id)
	)`,

	`CREATE TABLE IF NOT EXISTS projects (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT,
		status      TEXT NOT NULL DEFAULT 'active',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_active TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS trades (
		id              BIGSERIAL PRIMARY KEY,
		trade_id        TEXT NOT NULL,
		user_id         TEXT NOT NULL REFERENCES users(user_id),
		timestamp       TIMESTAMPTZ NOT NULL DEFAULT now(),
		symbol          TEXT NOT NULL,
		action          TEXT NOT NULL,
		quantity        INT NOT NULL,
		price           DOUBLE PRECISION,
		instrument_type TEXT NOT NULL,
		option_symbol   TEXT,
		account         TEXT NOT NULL,
		mode            TEXT NOT NULL,
		order_id        TEXT,
		status          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trades_user ON trades(user_id)`,
}

// Migrate applies the schema. Safe to call on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.log.Info("schema applied")
	return nil
}
