// Package resolver implements the word resolver (§4.5): adaptive
// autocomplete/fuzzy candidate retrieval from the lexicon, per-candidate
// alias matching, and hybrid scoring, satisfying [commit.Resolver].
//
// Grounded on WordResolver.resolve_word/_atlas_fuzzy_search/
// _find_best_matching_alias in
// original_source/src/word-resolver-service/services/word_resolver.py, with
// MongoDB Atlas Search replaced by [lexicon.Store].
package resolver

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aslstream/fingerspell/internal/confusion"
	"github.com/aslstream/fingerspell/internal/lexicon"
	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/resilience"
	"github.com/aslstream/fingerspell/pkg/types"
)

// autocompleteMaxLen is the raw-word length at or below which the
// autocomplete strategy is used (§4.5); longer words use fuzzy search.
const autocompleteMaxLen = 3

// retrieveLimit bounds the candidate set requested from the lexicon store;
// ranked results are then trimmed to topN.
const retrieveLimit = 20

// topN is the number of ranked results kept in [types.ResolvedWord.AllResults].
const topN = 5

const maxAliasEditDistance = 2

// Resolver resolves raw committed words against a per-user [lexicon.Store].
// Concurrent identical lookups (the same session re-hammering the same
// in-progress word while it's still being spelled) are coalesced through a
// [singleflight.Group], and the store itself sits behind a
// [resilience.CircuitBreaker] so a struggling lexicon backend degrades to
// empty results instead of piling up retries.
type Resolver struct {
	store   lexicon.Store
	metrics *observe.Metrics
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
}

// New constructs a [Resolver]. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func New(store lexicon.Store, metrics *observe.Metrics) *Resolver {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Resolver{
		store:   store,
		metrics: metrics,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "lexicon-store"}),
	}
}

// Resolve implements the commit engine's Resolver interface (§4.5).
func (r *Resolver) Resolve(ctx context.Context, sessionID, userID, rawWord string) (types.ResolvedWord, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "resolver.resolve")
	defer span.End()
	defer func() {
		r.metrics.ResolverDuration.Record(ctx, time.Since(start).Seconds())
	}()

	out := types.ResolvedWord{SessionID: sessionID, UserID: userID, RawWord: rawWord}
	if rawWord == "" {
		observe.Logger(ctx).Warn("resolver: empty raw word", "session_id", sessionID)
		return out, nil
	}

	method := types.SearchFuzzy
	if len(rawWord) <= autocompleteMaxLen {
		method = types.SearchAutocomplete
	}
	out.SearchMethod = method

	candidates, err := r.searchLexicon(ctx, method, rawWord, userID)
	if err != nil {
		observe.Logger(ctx).Warn("resolver: lexicon store unavailable", "session_id", sessionID, "error", err)
		r.metrics.RecordResolvedWord(ctx, string(method)+"_store_error")
		return out, nil
	}

	results := make([]types.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		alias, aliasConf := bestMatchingAlias(rawWord, c.Entry)
		hybrid := 0.7*c.AtlasScore + 0.3*aliasConf
		results = append(results, types.SearchResult{
			Surface:         c.Entry.Surface,
			AtlasScore:      c.AtlasScore,
			AliasConfidence: aliasConf,
			HybridScore:     hybrid,
			MatchedVia:      alias,
		})
	}

	sortByHybridScoreDesc(results)
	if len(results) > topN {
		results = results[:topN]
	}
	out.AllResults = results

	r.metrics.RecordResolvedWord(ctx, string(method))
	return out, nil
}

// searchLexicon retrieves candidates for rawWord via the lexicon store,
// coalescing concurrent identical lookups through the singleflight group and
// guarding the call with the circuit breaker so a failing store trips open
// instead of being hammered by every in-flight resolve.
func (r *Resolver) searchLexicon(ctx context.Context, method types.SearchMethod, rawWord, userID string) ([]lexicon.Candidate, error) {
	key := string(method) + "|" + userID + "|" + rawWord
	v, err, _ := r.group.Do(key, func() (any, error) {
		var candidates []lexicon.Candidate
		cbErr := r.breaker.Execute(func() error {
			var err error
			if method == types.SearchAutocomplete {
				candidates, err = r.store.SearchAutocomplete(ctx, rawWord, userID, retrieveLimit)
			} else {
				candidates, err = r.store.SearchFuzzy(ctx, rawWord, userID, retrieveLimit)
			}
			return err
		})
		if cbErr != nil {
			return nil, cbErr
		}
		return candidates, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]lexicon.Candidate), nil
}

// bestMatchingAlias picks the best-matching alias for query within entry
// (§4.5), trying each candidate (surface, then aliases) in order: an exact
// match (spaces/hyphens stripped, uppercase) wins immediately. Otherwise a
// prefix or substring match is scored by length delta with no distance
// bound, so a short autocomplete query like "CAT" still matches a long entry
// like "CATALOG" even though their edit distance is large, and any other
// candidate is scored by edit distance if within maxAliasEditDistance. Both
// kinds of score compete on one scale: the lowest wins, the earlier
// candidate on a tie. When nothing matches any candidate, it falls back to
// entry.Surface itself so callers always get a result instead of the
// candidate being dropped.
func bestMatchingAlias(query string, entry types.LexiconEntry) (alias string, confidence float64) {
	q := normalizeAlias(query)

	candidates := make([]string, 0, len(entry.Aliases)+1)
	candidates = append(candidates, entry.Surface)
	candidates = append(candidates, entry.Aliases...)

	best := ""
	bestDist := -1

	for _, c := range candidates {
		norm := normalizeAlias(c)
		if norm == q {
			return c, entry.ConfidenceScores[c]
		}
		if strings.HasPrefix(norm, q) || strings.Contains(norm, q) {
			delta := len(norm) - len(q)
			if delta < 0 {
				delta = -delta
			}
			if best == "" || delta < bestDist {
				best, bestDist = c, delta
			}
			continue
		}
		dist := confusion.EditDistance(norm, q)
		if dist <= maxAliasEditDistance && (best == "" || dist < bestDist) {
			best, bestDist = c, dist
		}
	}

	if best == "" {
		best = entry.Surface
	}
	return best, entry.ConfidenceScores[best]
}

func normalizeAlias(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

func sortByHybridScoreDesc(results []types.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].HybridScore > results[j-1].HybridScore; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

var _ interface {
	Resolve(ctx context.Context, sessionID, userID, rawWord string) (types.ResolvedWord, error)
} = (*Resolver)(nil)
