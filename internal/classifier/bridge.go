package classifier

import (
	"context"
	"time"

	"github.com/aslstream/fingerspell/internal/handext"
	"github.com/aslstream/fingerspell/internal/observe"
	"github.com/aslstream/fingerspell/pkg/types"
	"go.opentelemetry.io/otel/attribute"
)

// Bridge wires hand extraction and a [Model] together to turn a raw
// [types.LandmarkFrame] into a [types.LetterEvent] (§4.3 steps 1-5).
type Bridge struct {
	model   Model
	metrics *observe.Metrics
}

// NewBridge constructs a [Bridge]. metrics may be nil, in which case
// [observe.DefaultMetrics] is used.
func NewBridge(model Model, metrics *observe.Metrics) *Bridge {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Bridge{model: model, metrics: metrics}
}

// Classify extracts the dominant hand from frame, normalizes it, and invokes
// the classifier, returning the [types.LetterEvent] to publish on the
// letters stream. It never returns an error for a well-formed frame: a
// too-short frame (invalid tensor shape upstream) is logged and the record
// is dropped, matching §4.3's failure-mode note, by returning a non-nil
// error so the caller can skip publishing.
func (b *Bridge) Classify(ctx context.Context, frame types.LandmarkFrame) (types.LetterEvent, error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "classifier.bridge.classify")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", frame.SessionID),
		attribute.Int("frame.values", len(frame.Values)),
	)

	ext, err := handext.Extract(frame.Values)
	if err != nil {
		observe.Logger(ctx).Warn("classifier: dropping frame with invalid tensor shape",
			"session_id", frame.SessionID, "error", err)
		return types.LetterEvent{}, err
	}

	if ext.Skip {
		b.metrics.RecordSkip(ctx, string(ext.SkipReason))
		elapsed := time.Since(start)
		b.metrics.ClassifierDuration.Record(ctx, elapsed.Seconds())
		return types.LetterEvent{
			SessionID:        frame.SessionID,
			ConnectionID:     frame.ConnectionID,
			Timestamp:        frame.Timestamp,
			IsPrediction:     false,
			MultiHand:        ext.MultiHand,
			SkipReason:       ext.SkipReason,
			ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		}, nil
	}

	probs, err := b.model.Predict(ctx, ext.Features)
	if err != nil {
		observe.Logger(ctx).Error("classifier: model prediction failed",
			"session_id", frame.SessionID, "error", err)
		return types.LetterEvent{}, err
	}

	char, confidence := argmax(probs)
	elapsed := time.Since(start)
	b.metrics.ClassifierDuration.Record(ctx, elapsed.Seconds())
	span.SetAttributes(
		attribute.String("prediction", char),
		attribute.Float64("confidence", confidence),
	)

	return types.LetterEvent{
		SessionID:        frame.SessionID,
		ConnectionID:     frame.ConnectionID,
		Timestamp:        frame.Timestamp,
		IsPrediction:     true,
		Prediction:       char,
		Confidence:       confidence,
		Handedness:       ext.Handedness,
		ProcessingTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

// argmax returns the alphabet character with the highest probability and
// that probability. An out-of-range or entirely-zero distribution yields
// [types.UnknownChar] with zero confidence.
func argmax(probs []float64) (string, float64) {
	bestIdx := -1
	best := 0.0
	for i, p := range probs {
		if i >= len(types.Alphabet) {
			break
		}
		if p > best {
			best = p
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return types.UnknownChar, 0
	}
	return string(types.Alphabet[bestIdx]), best
}
