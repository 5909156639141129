package classifier

import (
	"context"
	"math"
	"sync"

	"github.com/aslstream/fingerspell/pkg/types"
)

// LookupModel is a deterministic reference [Model]: a nearest-centroid
// classifier over a fixed table of per-class feature centroids. It exists
// so the rest of the pipeline (bridge, commit engine, resolver) has a real,
// reproducible classifier to run against without requiring a trained tensor
// model — training the classifier is out of scope.
//
// Confidence is derived from the normalized inverse distance to the nearest
// centroid relative to the others, not a calibrated probability: a real
// trained model plugged in via [Model] would replace this scoring entirely.
type LookupModel struct {
	mu        sync.RWMutex
	centroids map[byte][]float64
	inputLen  int
}

// NewLookupModel builds a [LookupModel] with no centroids. Callers add
// centroids with [LookupModel.SetCentroid];
// classes with no centroid set are never predicted.
func NewLookupModel(inputLen int) *LookupModel {
	return &LookupModel{
		centroids: make(map[byte][]float64),
		inputLen:  inputLen,
	}
}

// SetCentroid registers (or replaces) the reference feature vector for one
// alphabet symbol. class must be a byte in [types.Alphabet]; centroid must
// have length InputLen().
func (m *LookupModel) SetCentroid(class byte, centroid []float64) {
	v := make([]float64, len(centroid))
	copy(v, centroid)
	m.mu.Lock()
	m.centroids[class] = v
	m.mu.Unlock()
}

// InputLen implements [Model].
func (m *LookupModel) InputLen() int { return m.inputLen }

// Predict implements [Model] by scoring the input against every registered
// centroid and converting distances to a normalized distribution: classes
// with no centroid registered always score 0.
func (m *LookupModel) Predict(_ context.Context, features []float64) ([]float64, error) {
	if len(features) != m.inputLen {
		return nil, ErrInvalidShape
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	weights := make([]float64, len(types.Alphabet))
	total := 0.0
	for i := 0; i < len(types.Alphabet); i++ {
		centroid, ok := m.centroids[types.Alphabet[i]]
		if !ok || len(centroid) != m.inputLen {
			continue
		}
		// Inverse-square-distance weighting: closer centroids dominate,
		// with a small epsilon to avoid division by zero on exact matches.
		d := euclideanDistance(features, centroid)
		w := 1.0 / (d*d + 1e-6)
		weights[i] = w
		total += w
	}

	if total == 0 {
		// No centroids registered at all: uniform-zero, handled upstream
		// as an unknown/low-confidence prediction.
		return weights, nil
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights, nil
}

func euclideanDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
