// Package fanout implements the enhanced fan-out consumer (§4.2): one
// independent task per landmarks-stream shard, each holding a long-lived
// push subscription and dispatching records to the classifier bridge in
// arrival order, then publishing the resulting letter event onto the
// letters stream.
//
// Adapted from the teacher's session reconnection monitor
// (internal/session/reconnect.go): the same exponential-backoff retry loop
// that watched a single voice connection here drives one subscription
// per shard, substituting streambus subscription expiry/transient errors
// for a dropped audio connection.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/internal/streambus"
	"github.com/aslstream/fingerspell/pkg/types"
)

// Default retry parameters (§4.2: "exponential backoff with 10% jitter,
// capped at 60s").
const (
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 60 * time.Second
	jitterFraction    = 0.10
	defaultLease      = 5 * time.Minute
)

// ClassifierBridge turns a landmark frame into the letter event to publish.
// Satisfied by [*classifier.Bridge].
type ClassifierBridge interface {
	Classify(ctx context.Context, frame types.LandmarkFrame) (types.LetterEvent, error)
}

// Config configures a [Consumer]. Zero values fall back to the §4.2
// defaults.
type Config struct {
	// Name identifies this consumer group in logs, matching the durable
	// consumer name §4.2 has an external broker register the push
	// subscription under.
	Name string
	// Backoff is the initial retry backoff after a transient subscribe/read
	// failure. Doubles each attempt up to MaxBackoff.
	Backoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// LeaseDuration is the subscription lease passed to
	// [streambus.Stream.Subscribe]; on expiry the shard resubscribes AFTER
	// its last delivered sequence number.
	LeaseDuration time.Duration
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "fanout-consumer"
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = defaultLease
	}
	return c
}

// landmarksWire mirrors the record ingress.Handler publishes onto the
// landmarks stream (§6): {session_id, connection_id, timestamp, landmarks,
// metadata}.
type landmarksWire struct {
	SessionID    string         `json:"session_id"`
	ConnectionID string         `json:"connection_id"`
	Timestamp    int64          `json:"timestamp"`
	Landmarks    []float64      `json:"landmarks"`
	Metadata     map[string]any `json:"metadata"`
}

// letterEventWire is the JSON shape published onto the letters stream (§6):
// either a prediction or a skip event, never both.
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

// Consumer is the enhanced fan-out consumer: it registers one task per
// landmarks-stream shard and republishes classified letter events onto the
// letters stream. The consumer owns no classification state (§4.2); all
// classification logic lives in the [ClassifierBridge].
type Consumer struct {
	landmarks *streambus.Stream
	letters   *streambus.Stream
	bridge    ClassifierBridge
	cfg       Config
	metrics   *observe.Metrics
}

// New constructs a [Consumer]. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func New(landmarks, letters *streambus.Stream, bridge ClassifierBridge, cfg Config, metrics *observe.Metrics) *Consumer {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Consumer{
		landmarks: landmarks,
		letters:   letters,
		bridge:    bridge,
		cfg:       cfg.withDefaults(),
		metrics:   metrics,
	}
}

// Run starts one task per landmarks shard and blocks until ctx is
// cancelled, at which point every shard task returns and Run returns. No
// named consumer is registered with the stream, so none is deregistered on
// shutdown.
func (c *Consumer) Run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < c.landmarks.ShardCount(); shard++ {
		shard := shard
		g.Go(func() error {
			c.runShard(gctx, shard)
			return nil
		})
	}
	_ = g.Wait()
}

// runShard drives the per-shard state machine described in §4.2: IDLE ->
// SUBSCRIBING -> ACTIVE, with transitions to RESUBSCRIBING(AFTER_SEQ) on
// subscription expiry, BACKOFF on transient failure, and STOPPED on
// shutdown.
func (c *Consumer) runShard(ctx context.Context, shard int) {
	log := observe.Logger(ctx).With("consumer", c.cfg.Name, "shard", shard)

	// Initial starting position is LATEST (§4.2): skip the shard's backlog
	// rather than replaying from the beginning.
	afterSeq, err := c.landmarks.LatestSeq(shard)
	if err != nil {
		log.Error("fanout: cannot determine starting offset, shard will not run", "error", err)
		return
	}

	backoff := c.cfg.Backoff
	for {
		if ctx.Err() != nil {
			log.Info("fanout: shard stopping")
			return
		}

		sub, err := c.landmarks.Subscribe(shard, afterSeq, c.cfg.LeaseDuration)
		if err != nil {
			log.Warn("fanout: subscribe failed, backing off", "error", err, "backoff", backoff)
			if !sleepOrStop(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
			continue
		}

		// ACTIVE: consume until the subscription expires, the stream
		// closes, or ctx is cancelled.
		backoff = c.cfg.Backoff // retry counter resets on successful subscription
		active, stop := c.drain(ctx, sub, log)
		afterSeq = sub.ContinuationSeq()
		if stop {
			return
		}
		if !active {
			// Transient failure other than expiry: back off before
			// resubscribing AFTER the last delivered sequence number.
			if !sleepOrStop(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, c.cfg.MaxBackoff)
		}
		// Expiry (active == true, stop == false) resubscribes immediately
		// AFTER afterSeq, matching RESUBSCRIBING(AFTER_SEQ).
	}
}

// drain reads records from sub until it returns an error. It reports
// whether the subscription ended via expected expiry (active=true, safe to
// resubscribe immediately) versus a transient error (active=false, caller
// should back off), and whether the shard should stop entirely (stream
// closed or ctx cancelled).
func (c *Consumer) drain(ctx context.Context, sub *streambus.Subscription, log *slog.Logger) (active, stop bool) {
	for {
		rec, err := sub.Next(ctx)
		if err != nil {
			switch err {
			case streambus.ErrSubscriptionExpired:
				return true, false
			case streambus.ErrClosed, context.Canceled, context.DeadlineExceeded:
				return false, true
			default:
				log.Warn("fanout: subscription read failed", "error", err)
				return false, false
			}
		}
		c.dispatch(ctx, rec, log)
	}
}

// dispatch decodes one landmarks record, classifies it, and republishes the
// resulting letter event onto the letters stream, partitioned by
// session_id.
func (c *Consumer) dispatch(ctx context.Context, rec streambus.Record, log *slog.Logger) {
	var wire landmarksWire
	if err := json.Unmarshal(rec.Payload, &wire); err != nil {
		log.Warn("fanout: dropping record with invalid payload", "seq", rec.Seq, "error", err)
		return
	}

	frame := types.LandmarkFrame{
		SessionID:    wire.SessionID,
		ConnectionID: wire.ConnectionID,
		Timestamp:    time.UnixMilli(wire.Timestamp).UTC(),
		Values:       wire.Landmarks,
		SourceMeta:   wire.Metadata,
	}

	event, err := c.bridge.Classify(ctx, frame)
	if err != nil {
		// Already logged by the bridge; invalid tensor shape or an
		// uninitialized classifier both drop the record, not the shard.
		return
	}

	payload, err := json.Marshal(letterEventWire{
		SessionID:        event.SessionID,
		ConnectionID:     event.ConnectionID,
		Timestamp:        event.Timestamp.UnixMilli(),
		IsPrediction:     event.IsPrediction,
		Prediction:       event.Prediction,
		Confidence:       event.Confidence,
		Handedness:       event.Handedness,
		MultiHand:        event.MultiHand,
		ProcessingTimeMs: event.ProcessingTimeMs,
		SkipReason:       event.SkipReason,
	})
	if err != nil {
		log.Error("fanout: encode letter event failed", "session_id", event.SessionID, "error", err)
		return
	}

	if _, err := c.letters.Publish(event.SessionID, payload); err != nil {
		log.Error("fanout: publish letter event failed", "session_id", event.SessionID, "error", err)
	}
}

// sleepOrStop waits for d, returning false early if ctx is cancelled first.
func sleepOrStop(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff doubles d, applies up to 10% jitter, and caps the result at
// max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Float64() * jitterFraction * float64(d))
	d += jitter
	if d > max {
		d = max
	}
	return d
}
