package lexicon

import (
	"context"
	"testing"

	"github.com/aslstream/fingerspell/pkg/types"
)

func TestMemStoreAutocompletePrefersPrefixMatch(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_ = s.Upsert(ctx, types.LexiconEntry{Surface: "HELLO", UserID: "u1", Aliases: []string{"HELO", "HLLO"}})
	_ = s.Upsert(ctx, types.LexiconEntry{Surface: "HELP", UserID: "u1"})

	cands, err := s.SearchAutocomplete(ctx, "HEL", "u1", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", cands)
	}
}

func TestMemStoreFuzzyRespectsMaxEditDistance(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.Upsert(ctx, types.LexiconEntry{Surface: "WORLD", UserID: "u1"})

	cands, err := s.SearchFuzzy(ctx, "WOOLD", "u1", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cands) != 1 || cands[0].Entry.Surface != "WORLD" {
		t.Fatalf("expected a fuzzy match on WORLD, got %+v", cands)
	}

	cands, err = s.SearchFuzzy(ctx, "ZZZZZZ", "u1", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no match beyond max edit distance, got %+v", cands)
	}
}

func TestMemStoreSearchIsolatesByUser(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	_ = s.Upsert(ctx, types.LexiconEntry{Surface: "CAT", UserID: "u1"})

	cands, err := s.SearchAutocomplete(ctx, "CAT", "u2", 20)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no cross-user match, got %+v", cands)
	}
}

func TestMemStoreSearchRespectsLimit(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	for _, surface := range []string{"CAT", "CATS", "CATNIP"} {
		_ = s.Upsert(ctx, types.LexiconEntry{Surface: surface, UserID: "u1"})
	}

	cands, err := s.SearchAutocomplete(ctx, "CAT", "u1", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected limit of 2 candidates, got %+v", cands)
	}
}
