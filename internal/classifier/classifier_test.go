package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/aslstream/fingerspell/internal/handext"
	"github.com/aslstream/fingerspell/pkg/types"
)

func TestLookupModelPredictsNearestCentroid(t *testing.T) {
	m := NewLookupModel(2)
	m.SetCentroid('A', []float64{0, 0})
	m.SetCentroid('B', []float64{10, 10})

	probs, err := m.Predict(context.Background(), []float64{0.1, 0.1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	char, conf := argmax(probs)
	if char != "A" {
		t.Fatalf("expected nearest centroid A, got %q", char)
	}
	if conf <= 0.5 {
		t.Fatalf("expected high confidence for a near-exact match, got %v", conf)
	}
}

func TestLookupModelRejectsWrongShape(t *testing.T) {
	m := NewLookupModel(4)
	_, err := m.Predict(context.Background(), []float64{1, 2})
	if err != ErrInvalidShape {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestLookupModelNoCentroidsYieldsZeroDistribution(t *testing.T) {
	m := NewLookupModel(2)
	probs, err := m.Predict(context.Background(), []float64{1, 1})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	char, conf := argmax(probs)
	if char != types.UnknownChar || conf != 0 {
		t.Fatalf("expected unknown/zero-confidence with no centroids, got %q %v", char, conf)
	}
}

func TestBridgeClassifyEmitsSkipEventForNoHands(t *testing.T) {
	model := NewLookupModel(handext.FeatureLen)
	b := NewBridge(model, nil)

	frame := types.LandmarkFrame{
		SessionID: "s1",
		Timestamp: time.Now(),
		Values:    make([]float64, handext.FrameLen),
	}

	ev, err := b.Classify(context.Background(), frame)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if ev.IsPrediction {
		t.Fatal("expected a skip event for an all-zero frame")
	}
	if ev.SkipReason != types.SkipNoHands {
		t.Fatalf("expected no_hands skip reason, got %q", ev.SkipReason)
	}
}

func TestBridgeClassifyEmitsPredictionForSingleHand(t *testing.T) {
	model := NewLookupModel(handext.FeatureLen)
	centroid := make([]float64, handext.FeatureLen)
	for i := range centroid {
		centroid[i] = 0.5
	}
	model.SetCentroid('A', centroid)

	frame := types.LandmarkFrame{
		SessionID: "s1",
		Timestamp: time.Now(),
		Values:    make([]float64, handext.FrameLen),
	}
	// Activate the right hand with a wrist point and one offset point.
	frame.Values[handext.RightStart] = 0.1
	frame.Values[handext.RightStart+1] = 0.1
	frame.Values[handext.RightStart+3] = 0.3
	frame.Values[handext.RightStart+4] = 0.2

	br := NewBridge(model, nil)
	ev, err := br.Classify(context.Background(), frame)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !ev.IsPrediction {
		t.Fatalf("expected a prediction event, got skip reason %q", ev.SkipReason)
	}
	if ev.Handedness != types.HandRight {
		t.Fatalf("expected right handedness, got %v", ev.Handedness)
	}
}

func TestBridgeClassifyRejectsShortFrame(t *testing.T) {
	model := NewLookupModel(handext.FeatureLen)
	b := NewBridge(model, nil)

	frame := types.LandmarkFrame{SessionID: "s1", Values: make([]float64, 10)}
	_, err := b.Classify(context.Background(), frame)
	if err == nil {
		t.Fatal("expected an error for a frame shorter than the expected hand block range")
	}
}
