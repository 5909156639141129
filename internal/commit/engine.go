// Package commit implements the sliding-window commit engine (§4.4):
// per-session confidence-weighted voting over a pruned observation window,
// gated by a confidence threshold, a stability duration, and an
// anti-repetition check, followed by pause-based word finalization handed
// off to the word resolver.
//
// Grounded on CommitEngine in
// original_source/src/word-resolver-service/services/commit_engine.py, with
// the window/buffer state delegated to [sessionstore.Store] instead of a
// direct Redis client.
package commit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/sessionstore"
	"github.com/aslstream/fingerspell/pkg/types"
)

// Config holds the sliding-window commit engine thresholds (§4.4). Field
// names mirror internal/config.CommitConfig and internal/config.SessionConfig;
// callers construct this from the loaded application config.
type Config struct {
	WindowMS           int64
	StabilityMS        int64
	VoteThreshold      float64
	CommitThreshold    float64
	PauseMS            int64
	MaxConsecutiveSame int
	WindowTTL          time.Duration
	BufferTTL          time.Duration
}

// DefaultConfig returns the §4.4 documented defaults.
func DefaultConfig() Config {
	return Config{
		WindowMS:           300,
		StabilityMS:        200,
		VoteThreshold:      0.3,
		CommitThreshold:    0.4,
		PauseMS:            2000,
		MaxConsecutiveSame: 1,
		WindowTTL:          300 * time.Second,
		BufferTTL:          300 * time.Second,
	}
}

// Resolver resolves a finalized raw word against the per-user lexicon. It
// is implemented by internal/resolver.
type Resolver interface {
	Resolve(ctx context.Context, sessionID, userID, rawWord string) (types.ResolvedWord, error)
}

// Engine is the sliding-window commit engine for one pipeline instance,
// shared across sessions; all per-session state lives in the [sessionstore.Store].
type Engine struct {
	store    sessionstore.Store
	resolver Resolver
	cfg      Config
	metrics  *observe.Metrics
}

// NewEngine constructs an [Engine]. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func NewEngine(store sessionstore.Store, resolver Resolver, cfg Config, metrics *observe.Metrics) *Engine {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{store: store, resolver: resolver, cfg: cfg, metrics: metrics}
}

// Result summarizes the effect of processing one [types.LetterEvent].
type Result struct {
	// Committed is true when a letter was appended to the word buffer.
	Committed bool
	// CommittedChar is the committed letter, valid only when Committed.
	CommittedChar string
	// Buffer is the word buffer's state after processing.
	Buffer types.WordBuffer
	// Finalized is non-nil when a pause finalized the word, handing it to
	// the resolver.
	Finalized *types.ResolvedWord
}

// ProcessEvent applies §4.4 to one incoming [types.LetterEvent] for
// sessionID/userID. Skip events never touch the window; both event kinds
// still run the pause check.
func (e *Engine) ProcessEvent(ctx context.Context, ev types.LetterEvent, userID string) (Result, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "commit.process_event")
	defer span.End()
	defer func() {
		e.metrics.CommitDuration.Record(ctx, time.Since(start).Seconds())
	}()

	var result Result
	if ev.IsPrediction {
		var err error
		result, err = e.processPrediction(ctx, ev, userID)
		if err != nil {
			return Result{}, err
		}
	} else {
		buf, err := e.store.WordBuffer(ctx, ev.SessionID, userID)
		if err != nil {
			return Result{}, fmt.Errorf("commit: get word buffer: %w", err)
		}
		result.Buffer = buf
	}

	finalized, err := e.checkPause(ctx, ev.SessionID, userID, result.Buffer)
	if err != nil {
		return Result{}, err
	}
	result.Finalized = finalized
	return result, nil
}

func (e *Engine) processPrediction(ctx context.Context, ev types.LetterEvent, userID string) (Result, error) {
	obs := types.LetterObservation{Char: ev.Prediction, Confidence: ev.Confidence, Timestamp: ev.Timestamp}
	if err := e.store.PushObservation(ctx, ev.SessionID, obs, e.cfg.WindowTTL); err != nil {
		return Result{}, fmt.Errorf("commit: push observation: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(e.cfg.WindowMS) * time.Millisecond)
	if _, err := e.store.PruneWindow(ctx, ev.SessionID, cutoff); err != nil {
		return Result{}, fmt.Errorf("commit: prune window: %w", err)
	}

	window, err := e.store.Window(ctx, ev.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("commit: get window: %w", err)
	}

	buf, err := e.store.WordBuffer(ctx, ev.SessionID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("commit: get word buffer: %w", err)
	}

	candidate, ok := topCandidate(window, e.cfg.VoteThreshold)
	if !ok {
		return Result{Buffer: buf}, nil
	}

	if candidate.AverageConfidence() < e.cfg.CommitThreshold {
		return Result{Buffer: buf}, nil
	}
	if candidate.LastSeen.Sub(candidate.FirstSeen) < time.Duration(e.cfg.StabilityMS)*time.Millisecond {
		return Result{Buffer: buf}, nil
	}
	if isRepetition(buf.Letters, candidate.Char, e.cfg.MaxConsecutiveSame) {
		return Result{Buffer: buf}, nil
	}

	buf, err = e.store.AppendToWord(ctx, ev.SessionID, userID, candidate.Char, e.cfg.BufferTTL)
	if err != nil {
		return Result{}, fmt.Errorf("commit: append to word: %w", err)
	}
	e.metrics.RecordCommit(ctx, ev.SessionID)

	return Result{Committed: true, CommittedChar: candidate.Char, Buffer: buf}, nil
}

// checkPause finalizes buf's word when the pause duration has elapsed since
// the last commit, clearing both the window and the buffer and handing the
// raw word to the resolver.
func (e *Engine) checkPause(ctx context.Context, sessionID, userID string, buf types.WordBuffer) (*types.ResolvedWord, error) {
	if len(buf.Letters) == 0 {
		return nil, nil
	}
	if time.Since(buf.LastCommitTS) < time.Duration(e.cfg.PauseMS)*time.Millisecond {
		return nil, nil
	}

	rawWord := buf.Word()
	resolved, err := e.resolver.Resolve(ctx, sessionID, userID, rawWord)
	if err != nil {
		return nil, fmt.Errorf("commit: resolve finalized word: %w", err)
	}

	if err := e.store.CleanupSession(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("commit: cleanup session after finalize: %w", err)
	}
	return &resolved, nil
}

// SweepPauses runs the periodic (≥1 Hz) finalization check for sessionID,
// for callers driving a background sweep over sessions that have gone
// silent rather than relying purely on event-driven checks.
func (e *Engine) SweepPauses(ctx context.Context, sessionID, userID string) (*types.ResolvedWord, error) {
	buf, err := e.store.WordBuffer(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("commit: sweep get word buffer: %w", err)
	}
	return e.checkPause(ctx, sessionID, userID, buf)
}

// topCandidate aggregates per-character confidence over window (filtering
// to observations at or above voteThreshold) and returns the winner: the
// character with the highest summed confidence, ties broken by the most
// recent last_seen, then lexicographically.
func topCandidate(window []types.LetterObservation, voteThreshold float64) (types.CommitCandidate, bool) {
	agg := make(map[string]*types.CommitCandidate)
	for _, obs := range window {
		if obs.Confidence < voteThreshold {
			continue
		}
		c, ok := agg[obs.Char]
		if !ok {
			c = &types.CommitCandidate{Char: obs.Char, FirstSeen: obs.Timestamp, LastSeen: obs.Timestamp}
			agg[obs.Char] = c
		}
		c.AggregateConf += obs.Confidence
		c.Count++
		if obs.Timestamp.Before(c.FirstSeen) {
			c.FirstSeen = obs.Timestamp
		}
		if obs.Timestamp.After(c.LastSeen) {
			c.LastSeen = obs.Timestamp
		}
	}
	if len(agg) == 0 {
		return types.CommitCandidate{}, false
	}

	candidates := make([]types.CommitCandidate, 0, len(agg))
	for _, c := range agg {
		candidates = append(candidates, *c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.AggregateConf != b.AggregateConf {
			return a.AggregateConf > b.AggregateConf
		}
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.Char < b.Char
	})
	return candidates[0], true
}

// isRepetition reports whether the last maxConsecutive letters of letters
// are all equal to char (§4.4 step 7). maxConsecutive <= 0 disables the
// check.
func isRepetition(letters []string, char string, maxConsecutive int) bool {
	if maxConsecutive <= 0 || len(letters) < maxConsecutive {
		return false
	}
	for _, l := range letters[len(letters)-maxConsecutive:] {
		if l != char {
			return false
		}
	}
	return true
}
