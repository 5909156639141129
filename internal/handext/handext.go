// Package handext implements the hand extraction and normalization step of
// the classifier bridge (§4.3 steps 1-3): slicing the two hand blocks out of
// a MediaPipe Holistic frame, applying the single-hand skip policy, and
// producing the wrist-relative, scale-normalized 40-value feature vector
// the classifier expects.
//
// Grounded on the landmark offsets and normalization steps of
// LetterASLService.extract_hand_from_holistic / pre_process_landmark in the
// original letter-model-service.
package handext

import (
	"errors"
	"math"

	"github.com/aslstream/fingerspell/pkg/types"
)

// Fixed offsets into a flattened MediaPipe Holistic frame: pose (33*4=132),
// face (468*3=1404), left hand (21*3=63), right hand (21*3=63).
const (
	PoseStart  = 0
	PoseEnd    = 132
	FaceStart  = PoseEnd
	FaceEnd    = FaceStart + 468*3 // 1536
	LeftStart  = FaceEnd          // 1536
	LeftEnd    = LeftStart + 21*3 // 1599
	RightStart = LeftEnd          // 1599
	RightEnd   = RightStart + 21*3 // 1662

	// FrameLen is the total expected length of a holistic landmark frame.
	FrameLen = RightEnd

	// activeThreshold is the minimum absolute magnitude a hand block needs
	// anywhere in it to be considered "active" (a hand was detected).
	activeThreshold = 0.01

	// handPoints is the number of (x, y, z) landmark points per hand.
	handPoints = 21

	// FeatureLen is the length of the normalized feature vector handed to
	// the classifier: 21 points * 2 coords, minus the always-zero wrist
	// pair discarded after normalization.
	FeatureLen = handPoints*2 - 2
)

// ErrInvalidFrameLength is returned when a landmark frame isn't long enough
// to contain both hand blocks.
var ErrInvalidFrameLength = errors.New("handext: frame shorter than expected hand block range")

// Extraction is the result of extracting and normalizing a single hand from
// one holistic frame.
type Extraction struct {
	Handedness types.Handedness
	MultiHand  bool
	Skip       bool
	SkipReason types.SkipReason
	// Features is the 40-value normalized feature vector, populated only
	// when Skip is false.
	Features []float64
}

// Extract applies the single-hand selection policy to a flattened holistic
// frame and, when exactly one hand is active, normalizes it into the
// 40-value feature vector the classifier consumes.
func Extract(frame []float64) (Extraction, error) {
	if len(frame) < FrameLen {
		return Extraction{}, ErrInvalidFrameLength
	}

	left := frame[LeftStart:LeftEnd]
	right := frame[RightStart:RightEnd]
	leftActive := blockActive(left)
	rightActive := blockActive(right)

	switch {
	case leftActive && rightActive:
		return Extraction{MultiHand: true, Skip: true, SkipReason: types.SkipMultiHand}, nil
	case !leftActive && !rightActive:
		return Extraction{Skip: true, SkipReason: types.SkipNoHands}, nil
	}

	var hand []float64
	var handedness types.Handedness
	if rightActive {
		hand = right
		handedness = types.HandRight
	} else {
		hand = left
		handedness = types.HandLeft
	}

	points := make([][2]float64, handPoints)
	for i := 0; i < handPoints; i++ {
		points[i][0] = hand[i*3]
		points[i][1] = hand[i*3+1]
		// z (hand[i*3+2]) is discarded; the classifier is a 2D model.
	}

	features := normalize(points)
	return Extraction{Handedness: handedness, Features: features}, nil
}

func blockActive(block []float64) bool {
	for _, v := range block {
		if math.Abs(v) > activeThreshold {
			return true
		}
	}
	return false
}

// normalize translates points by the wrist (point 0), scales by the max
// absolute coordinate, flattens to 42 reals, and drops the first two
// (always zero after translation) to produce the 40-value feature vector.
func normalize(points [][2]float64) []float64 {
	baseX, baseY := points[0][0], points[0][1]
	rel := make([][2]float64, len(points))
	maxAbs := 0.0
	for i, p := range points {
		x, y := p[0]-baseX, p[1]-baseY
		rel[i] = [2]float64{x, y}
		if a := math.Abs(x); a > maxAbs {
			maxAbs = a
		}
		if a := math.Abs(y); a > maxAbs {
			maxAbs = a
		}
	}

	flat := make([]float64, 0, handPoints*2)
	for _, p := range rel {
		flat = append(flat, p[0], p[1])
	}

	if maxAbs != 0 {
		for i, v := range flat {
			flat[i] = v / maxAbs
		}
	}

	// flat[0:2] is the wrist point relative to itself, always (0, 0).
	return flat[2:]
}
