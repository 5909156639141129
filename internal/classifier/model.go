// Package classifier implements the tensor classifier half of the hand
// extractor + classifier bridge (§4.3 steps 4-5): given a normalized
// 40-value feature vector it produces a probability distribution over the
// fingerspelling alphabet, and the bridge turns that into a [types.LetterEvent]
// on the letters stream.
//
// Training the classifier is explicitly out of scope (§1 Non-goals); [Model]
// is a pluggable interface so a real trained model can be substituted for
// the deterministic [LookupModel] reference implementation without touching
// the bridge.
package classifier

import (
	"context"
	"errors"

	"github.com/aslstream/fingerspell/pkg/types"
)

// ErrInvalidShape is returned by a [Model] when its input vector length
// doesn't match what the model expects.
var ErrInvalidShape = errors.New("classifier: invalid input tensor shape")

// Model is the abstraction over any local tensor classifier that maps a
// normalized hand feature vector to a probability distribution over the
// fingerspelling alphabet. Implementations must be safe for concurrent use.
type Model interface {
	// Predict returns a probability for each class in [types.Alphabet], in
	// the same order. len(result) must equal len(types.Alphabet); an input
	// of the wrong length returns [ErrInvalidShape].
	Predict(ctx context.Context, features []float64) ([]float64, error)

	// InputLen is the feature vector length this model expects.
	InputLen() int
}
