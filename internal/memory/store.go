package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"alex/internal/config"
)

// Store is the Postgres-backed memory store. All methods are safe for
// concurrent use; the pool provides per-query serialization.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New opens the connection pool and registers the pgvector types.
func New(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("parse postgres uri: %w", err)
	}
	poolCfg.MinConns = int32(cfg.PoolMin)
	poolCfg.MaxConns = int32(cfg.PoolMax)
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, log: log.Named("store")}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureUser creates the user lazily on first reference.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id) VALUES ($1) ON CONFLICT DO NOTHING`,
		userID)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// ensureDay creates the time-tree node for the timestamp's date.
func (s *Store) ensureDay(ctx context.Context, ts time.Time) (time.Time, error) {
	date := DateOf(ts)
	year, week := ts.ISOWeek()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO days (date, year, month, day, week, weekday)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		date, year, int(ts.Month()), ts.Day(), week, int(ts.Weekday()))
	if err != nil {
		return time.Time{}, fmt.Errorf("ensure day: %w", err)
	}
	return date, nil
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// StoreInteraction persists one completed turn and links its topics to
// the concept index. Returns the interaction id.
func (s *Store) StoreInteraction(ctx context.Context, in *Interaction, topics []string, embedding []float32) (int64, error) {
	if err := s.EnsureUser(ctx, in.UserID); err != nil {
		return 0, err
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now().UTC()
	}
	date, err := s.ensureDay(ctx, in.Timestamp)
	if err != nil {
		return 0, err
	}

	var vec any
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO interactions
		   (user_id, date, timestamp, user_message, assistant_response,
		    intent, complexity_score, model_used, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		in.UserID, date, in.Timestamp, in.UserMessage, in.AssistantResponse,
		nullable(in.Intent), in.ComplexityScore, nullable(in.ModelUsed), vec,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store interaction: %w", err)
	}

	if err := s.linkInteractionConcepts(ctx, id, topics); err != nil {
		// Concept linking is best-effort; the interaction row is the record.
		s.log.Warn("concept linking failed", zap.Int64("interaction_id", id), zap.Error(err))
	}
	return id, nil
}

// linkInteractionConcepts upserts each topic as a concept and adds the
// co-occurrence edge. Edges are sets; duplicates are ignored.
func (s *Store) linkInteractionConcepts(ctx context.Context, interactionID int64, topics []string) error {
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		var conceptID int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO concepts (name, normalized_name, mention_count)
			 VALUES ($1, $2, 1)
			 ON CONFLICT (name) DO UPDATE SET mention_count = concepts.mention_count + 1
			 RETURNING id`,
			topic, NormalizeConcept(topic),
		).Scan(&conceptID)
		if err != nil {
			return fmt.Errorf("upsert concept %q: %w", topic, err)
		}

		_, err = s.pool.Exec(ctx,
			`INSERT INTO interaction_concepts (interaction_id, concept_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			interactionID, conceptID)
		if err != nil {
			return fmt.Errorf("link concept %q: %w", topic, err)
		}
	}
	return nil
}

// NormalizeConcept lowercases a concept name and replaces spaces with
// underscores, matching the normalized_name column.
func NormalizeConcept(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// GetRecentInteractions returns up to limit interactions for a date,
// newest first.
func (s *Store) GetRecentInteractions(ctx context.Context, date time.Time, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, date, timestamp, user_message, assistant_response,
		        COALESCE(intent, ''), complexity_score, COALESCE(model_used, '')
		 FROM interactions
		 WHERE date = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`,
		DateOf(date), limit)
	if err != nil {
		return nil, fmt.Errorf("recent interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows, false)
}

// SemanticSearch returns the top-k interactions by cosine similarity to
// the query vector, filtered to similarity >= minScore. It over-fetches
// 2x before filtering so near-threshold results are not lost to the
// index's approximation.
func (s *Store) SemanticSearch(ctx context.Context, queryVec []float32, topK int, minScore float64) ([]Interaction, error) {
	if topK <= 0 {
		topK = 5
	}
	vec := pgvector.NewVector(queryVec)
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, date, timestamp, user_message, assistant_response,
		        COALESCE(intent, ''), complexity_score, COALESCE(model_used, ''),
		        1 - (embedding <=> $1) AS similarity
		 FROM interactions
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, topK*2)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	defer rows.Close()

	candidates, err := scanInteractions(rows, true)
	if err != nil {
		return nil, err
	}

	results := make([]Interaction, 0, topK)
	for _, c := range candidates {
		if c.Similarity >= minScore {
			results = append(results, c)
			if len(results) == topK {
				break
			}
		}
	}
	return results, nil
}

// InteractionsMissingEmbedding returns rows awaiting embedding backfill.
func (s *Store) InteractionsMissingEmbedding(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, date, timestamp, user_message, assistant_response,
		        COALESCE(intent, ''), complexity_score, COALESCE(model_used, '')
		 FROM interactions
		 WHERE embedding IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("missing embeddings: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows, false)
}

// UpdateInteractionEmbedding backfills the vector for one interaction.
func (s *Store) UpdateInteractionEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE interactions SET embedding = $1 WHERE id = $2`,
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

// GetRelatedConcepts returns, for the given topics, names of distinct
// concepts co-mentioned in any common interaction. Capped per topic.
func (s *Store) GetRelatedConcepts(ctx context.Context, topics []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	seen := make(map[string]bool)
	var related []string
	for _, topic := range topics {
		rows, err := s.pool.Query(ctx,
			`SELECT DISTINCT c2.name
			 FROM concepts c1
			 JOIN interaction_concepts ic1 ON ic1.concept_id = c1.id
			 JOIN interaction_concepts ic2 ON ic2.interaction_id = ic1.interaction_id
			 JOIN concepts c2 ON c2.id = ic2.concept_id
			 WHERE c1.normalized_name = $1 AND c2.id <> c1.id
			 LIMIT $2`,
			NormalizeConcept(topic), limit)
		if err != nil {
			return nil, fmt.Errorf("related concepts: %w", err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			if !seen[name] {
				seen[name] = true
				related = append(related, name)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return related, nil
}

// FindProjects substring-matches entities against project names and
// descriptions.
func (s *Store) FindProjects(ctx context.Context, entities []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	seen := make(map[string]bool)
	var names []string
	for _, entity := range entities {
		entity = strings.TrimSpace(entity)
		if entity == "" {
			continue
		}
		rows, err := s.pool.Query(ctx,
			`SELECT name FROM projects
			 WHERE name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
			 LIMIT $2`,
			entity, limit)
		if err != nil {
			return nil, fmt.Errorf("find projects: %w", err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return nil, err
			}
			if !seen[name] && len(names) < limit {
				seen[name] = true
				names = append(names, name)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return names, nil
}

func scanInteractions(rows pgx.Rows, withSimilarity bool) ([]Interaction, error) {
	var out []Interaction
	for rows.Next() {
		var in Interaction
		dest := []any{
			&in.ID, &in.UserID, &in.Date, &in.Timestamp,
			&in.UserMessage, &in.AssistantResponse,
			&in.Intent, &in.ComplexityScore, &in.ModelUsed,
		}
		if withSimilarity {
			dest = append(dest, &in.Similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// nullable maps empty strings to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
