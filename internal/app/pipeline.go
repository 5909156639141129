package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aslstream/fingerspell/internal/streambus"
	"github.com/aslstream/fingerspell/pkg/types"
)

// letterEventWire mirrors the JSON shape internal/fanout publishes onto the
// letters stream. Kept as an independent package-local copy rather than an
// exported type, the same way ingress and fanout each keep their own wire
// structs private at their package boundary.
type letterEventWire struct {
	SessionID        string           `json:"session_id"`
	ConnectionID     string           `json:"connection_id"`
	Timestamp        int64            `json:"timestamp"`
	IsPrediction     bool             `json:"is_prediction"`
	Prediction       string           `json:"prediction,omitempty"`
	Confidence       float64          `json:"confidence,omitempty"`
	Handedness       types.Handedness `json:"handedness,omitempty"`
	MultiHand        bool             `json:"multi_hand,omitempty"`
	ProcessingTimeMs float64          `json:"processing_time_ms"`
	SkipReason       types.SkipReason `json:"skip_reason,omitempty"`
}

// runLettersConsumer drains every shard of the letters stream, feeding each
// event to the commit engine and dispatching any word the engine finalizes.
// Unlike the landmarks fan-out consumer, this loop has no external failure
// mode to retry against — the letters stream is produced entirely
// in-process — so it runs a single long-lived subscription per shard for
// the life of ctx instead of the fan-out's resubscribe/backoff state
// machine.
func (a *App) runLettersConsumer(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < a.letters.ShardCount(); shard++ {
		shard := shard
		g.Go(func() error {
			a.drainLetterShard(gctx, shard)
			return nil
		})
	}
	_ = g.Wait()
}

func (a *App) drainLetterShard(ctx context.Context, shard int) {
	log := slog.With("shard", shard)

	afterSeq, err := a.letters.LatestSeq(shard)
	if err != nil {
		log.Error("app: cannot determine letters starting offset", "error", err)
		return
	}
	sub, err := a.letters.Subscribe(shard, afterSeq, 0)
	if err != nil {
		log.Error("app: subscribe to letters shard failed", "error", err)
		return
	}

	for {
		rec, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, streambus.ErrClosed) && ctx.Err() == nil {
				log.Warn("app: letters subscription read failed", "error", err)
			}
			return
		}
		a.processLetterEvent(ctx, rec, log)
	}
}

func (a *App) processLetterEvent(ctx context.Context, rec streambus.Record, log *slog.Logger) {
	var wire letterEventWire
	if err := json.Unmarshal(rec.Payload, &wire); err != nil {
		log.Warn("app: dropping letter event with invalid payload", "seq", rec.Seq, "error", err)
		return
	}

	ev := types.LetterEvent{
		SessionID:        wire.SessionID,
		ConnectionID:     wire.ConnectionID,
		Timestamp:        time.UnixMilli(wire.Timestamp).UTC(),
		IsPrediction:     wire.IsPrediction,
		Prediction:       wire.Prediction,
		Confidence:       wire.Confidence,
		Handedness:       wire.Handedness,
		MultiHand:        wire.MultiHand,
		ProcessingTimeMs: wire.ProcessingTimeMs,
		SkipReason:       wire.SkipReason,
	}

	// The ingress wire never carries a user identity distinct from
	// session_id (§6), so the commit engine and resolver are driven with
	// userID == sessionID throughout; per-user lexicon scoping still works
	// since every session belongs to exactly one signed-in user in this
	// deployment shape.
	userID := ev.SessionID
	a.markSessionActive(ev.SessionID)

	result, err := a.commitEngine.ProcessEvent(ctx, ev, userID)
	if err != nil {
		log.Warn("app: process letter event failed", "session_id", ev.SessionID, "error", err)
		return
	}
	if result.Finalized != nil {
		a.dispatcher.Dispatch(ctx, *result.Finalized)
	}
}

// runPauseSweep periodically runs the commit engine's finalization check
// over every session seen so far, for sessions that have gone silent
// without the event-driven checkPause ever firing again. §4.4 documents
// this as a >=1Hz periodic sweep; commit.pause_sweep_interval defaults to
// 1s.
func (a *App) runPauseSweep(ctx context.Context) {
	interval := a.cfg.Commit.PauseSweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweepAllSessions(ctx)
		}
	}
}

func (a *App) sweepAllSessions(ctx context.Context) {
	a.forEachActiveSession(func(sessionID string) {
		userID := sessionID
		finalized, err := a.commitEngine.SweepPauses(ctx, sessionID, userID)
		if err != nil {
			slog.Warn("app: pause sweep failed", "session_id", sessionID, "error", err)
			return
		}
		if finalized != nil {
			a.dispatcher.Dispatch(ctx, *finalized)
		}
	})
}
