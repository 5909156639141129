package lexicon

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/aslstream/fingerspell/pkg/types"
)

// MemStore is an in-process [Store] for tests, scoring candidates with the
// same edit-distance library internal/confusion uses rather than standing up
// PostgreSQL with pg_trgm installed.
type MemStore struct {
	mu      sync.Mutex
	entries map[string]map[string]types.LexiconEntry // userID -> surface -> entry
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[string]map[string]types.LexiconEntry)}
}

// Upsert implements [Store].
func (s *MemStore) Upsert(_ context.Context, entry types.LexiconEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.entries[entry.UserID]
	if !ok {
		byUser = make(map[string]types.LexiconEntry)
		s.entries[entry.UserID] = byUser
	}
	byUser[entry.Surface] = entry
	return nil
}

// SearchAutocomplete implements [Store] with prefix or substring matching
// over surface and aliases, scored by length-delta similarity.
func (s *MemStore) SearchAutocomplete(_ context.Context, query, userID string, limit int) ([]Candidate, error) {
	q := strings.ToUpper(query)
	return s.search(userID, limit, func(term string) (float64, bool) {
		t := strings.ToUpper(term)
		if !strings.HasPrefix(t, q) && !strings.Contains(t, q) {
			return 0, false
		}
		delta := len(t) - len(q)
		if delta < 0 {
			delta = -delta
		}
		return 1.0 / float64(1+delta), true
	})
}

// SearchFuzzy implements [Store] with Levenshtein-distance matching over
// surface and aliases jointly.
func (s *MemStore) SearchFuzzy(_ context.Context, query, userID string, limit int) ([]Candidate, error) {
	q := strings.ToUpper(query)
	return s.search(userID, limit, func(term string) (float64, bool) {
		t := strings.ToUpper(term)
		dist := matchr.Levenshtein(t, q)
		if dist > 2 {
			return 0, false
		}
		maxLen := len(t)
		if len(q) > maxLen {
			maxLen = len(q)
		}
		if maxLen == 0 {
			return 1, true
		}
		return 1 - float64(dist)/float64(maxLen), true
	})
}

func (s *MemStore) search(userID string, limit int, score func(term string) (float64, bool)) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Candidate
	for _, entry := range s.entries[userID] {
		best := 0.0
		matched := false
		if v, ok := score(entry.Surface); ok && v > best {
			best, matched = v, true
		}
		for _, a := range entry.Aliases {
			if v, ok := score(a); ok && v > best {
				best, matched = v, true
			}
		}
		if matched {
			out = append(out, Candidate{Entry: entry, AtlasScore: best})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].AtlasScore > out[j].AtlasScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements [Store]; MemStore holds no resources to release.
func (s *MemStore) Close() {}

var _ Store = (*MemStore)(nil)
