// Package lexicon is the per-user surface/alias store backing the word
// resolver (§4.5): candidate retrieval by autocomplete or fuzzy text search,
// each candidate carrying an opaque atlas_score the resolver blends with
// alias confidence.
//
// The PostgreSQL implementation mirrors pkg/memory/postgres's dynamic-WHERE,
// pgx.CollectRows scanning style, swapping MongoDB Atlas Search (the original
// word_resolver.py backend) for pg_trgm trigram similarity, which is the
// closest equivalent available from the teacher's own stack.
package lexicon

import (
	"context"

	"github.com/aslstream/fingerspell/pkg/types"
)

// Candidate is one row returned by a search, before the resolver applies
// alias matching and hybrid scoring.
type Candidate struct {
	Entry      types.LexiconEntry
	AtlasScore float64
}

// Store is the lexicon's storage and search interface.
type Store interface {
	// Upsert inserts or replaces entry, keyed by (Surface, UserID).
	Upsert(ctx context.Context, entry types.LexiconEntry) error

	// SearchAutocomplete performs a prefix-biased search over aliases and
	// surface for |query| <= 3 characters (§4.5), restricted to userID, returning
	// at most limit candidates ordered by AtlasScore descending.
	SearchAutocomplete(ctx context.Context, query, userID string, limit int) ([]Candidate, error)

	// SearchFuzzy performs a fuzzy text search over aliases and surface
	// jointly for |query| >= 4 (§4.5), restricted to userID, returning at
	// most limit candidates ordered by AtlasScore descending.
	SearchFuzzy(ctx context.Context, query, userID string, limit int) ([]Candidate, error)

	Close()
}
