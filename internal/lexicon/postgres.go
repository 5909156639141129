package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aslstream/fingerspell/pkg/types"
)

const ddlLexiconEntries = `
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS lexicon_entries (
    surface           TEXT         NOT NULL,
    user_id           TEXT         NOT NULL,
    aliases           TEXT[]       NOT NULL DEFAULT '{}',
    confidence_scores JSONB        NOT NULL DEFAULT '{}',
    updated_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (surface, user_id)
);

CREATE INDEX IF NOT EXISTS idx_lexicon_entries_user
    ON lexicon_entries (user_id);

CREATE INDEX IF NOT EXISTS idx_lexicon_entries_surface_trgm
    ON lexicon_entries USING GIN (surface gin_trgm_ops);
`

// PostgresStore is a [Store] backed by PostgreSQL and the pg_trgm extension,
// standing in for the original word_resolver.py's MongoDB Atlas Search index.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, runs the lexicon migration, and returns
// a ready [PostgresStore].
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("lexicon: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lexicon: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlLexiconEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lexicon: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

// Upsert implements [Store].
func (s *PostgresStore) Upsert(ctx context.Context, entry types.LexiconEntry) error {
	scores, err := json.Marshal(entry.ConfidenceScores)
	if err != nil {
		return fmt.Errorf("lexicon: marshal confidence scores: %w", err)
	}

	const q = `
		INSERT INTO lexicon_entries (surface, user_id, aliases, confidence_scores, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (surface, user_id) DO UPDATE SET
		    aliases           = EXCLUDED.aliases,
		    confidence_scores = EXCLUDED.confidence_scores,
		    updated_at        = now()`

	if _, err := s.pool.Exec(ctx, q, entry.Surface, entry.UserID, entry.Aliases, scores); err != nil {
		return fmt.Errorf("lexicon: upsert: %w", err)
	}
	return nil
}

// SearchAutocomplete implements [Store] using pg_trgm's word_similarity,
// which favors prefix-like matches over the surface and alias arrays — the
// closest PostgreSQL equivalent to Atlas Search's autocomplete operator.
func (s *PostgresStore) SearchAutocomplete(ctx context.Context, query, userID string, limit int) ([]Candidate, error) {
	const q = `
		SELECT surface, user_id, aliases, confidence_scores, updated_at, score
		FROM (
		    SELECT surface, user_id, aliases, confidence_scores, updated_at,
		           GREATEST(
		               word_similarity($1, surface),
		               COALESCE((SELECT MAX(word_similarity($1, a)) FROM unnest(aliases) AS a), 0)
		           ) AS score
		    FROM lexicon_entries
		    WHERE user_id = $2
		) ranked
		WHERE score > 0.1
		ORDER BY score DESC
		LIMIT $3`
	return s.search(ctx, q, query, userID, limit)
}

// SearchFuzzy implements [Store] using pg_trgm's similarity, the fuzzy
// full-text equivalent used for longer queries.
func (s *PostgresStore) SearchFuzzy(ctx context.Context, query, userID string, limit int) ([]Candidate, error) {
	const q = `
		SELECT surface, user_id, aliases, confidence_scores, updated_at, score
		FROM (
		    SELECT surface, user_id, aliases, confidence_scores, updated_at,
		           GREATEST(
		               similarity($1, surface),
		               COALESCE((SELECT MAX(similarity($1, a)) FROM unnest(aliases) AS a), 0)
		           ) AS score
		    FROM lexicon_entries
		    WHERE user_id = $2
		) ranked
		WHERE score > 0.05
		ORDER BY score DESC
		LIMIT $3`
	return s.search(ctx, q, query, userID, limit)
}

func (s *PostgresStore) search(ctx context.Context, q, query, userID string, limit int) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx, q, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexicon: search: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Candidate, error) {
		var (
			c       Candidate
			scores  []byte
			updated time.Time
		)
		if err := row.Scan(&c.Entry.Surface, &c.Entry.UserID, &c.Entry.Aliases, &scores, &updated, &c.AtlasScore); err != nil {
			return Candidate{}, err
		}
		c.Entry.UpdatedAt = updated
		if len(scores) > 0 {
			if err := json.Unmarshal(scores, &c.Entry.ConfidenceScores); err != nil {
				return Candidate{}, fmt.Errorf("lexicon: unmarshal confidence scores: %w", err)
			}
		}
		return c, nil
	})
}

var _ Store = (*PostgresStore)(nil)
