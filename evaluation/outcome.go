package evaluation

import (
	"fmt"

	"github.com/pkg/errors"
)

// Outcome is the confusion classification of one pixel.
type Outcome int

const (
	// TrueNegative is background in both masks.
	TrueNegative Outcome = iota
	// FalseNegative is foreground in the ground truth only.
	FalseNegative
	// FalsePositive is foreground in the prediction only.
	FalsePositive
	// TruePositive is foreground in both masks.
	TruePositive
)

// Label values accepted by Classify.
const (
	PredictedBackground   uint8 = 0
	PredictedForeground   uint8 = 255
	GroundTruthBackground uint8 = 0
	GroundTruthForeground uint8 = 1
)

func (o Outcome) String() string {
	switch o {
	case TrueNegative:
		return "TN"
	case FalseNegative:
		return "FN"
	case FalsePositive:
		return "FP"
	case TruePositive:
		return "TP"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ErrMalformedMask is matched by every *MalformedMaskError.
var ErrMalformedMask = errors.New("malformed mask")

// MalformedMaskError reports the first pixel whose value pair is outside the
// accepted label sets.
type MalformedMaskError struct {
	X, Y        int
	Predicted   uint8
	GroundTruth uint8
}

func (e *MalformedMaskError) Error() string {
	return fmt.Sprintf("malformed mask at (%d,%d): predicted=%d ground truth=%d (sum %d)",
		e.X, e.Y, e.Predicted, e.GroundTruth, int(e.Predicted)+int(e.GroundTruth))
}

// Is lets errors.Is match ErrMalformedMask.
func (e *MalformedMaskError) Is(target error) bool {
	return target == ErrMalformedMask
}

// Classify maps a predicted/ground-truth value pair to its Outcome.
//
// The mapping equals the summed-value rule {0,1,255,256} -> {TN,FN,FP,TP} for
// valid inputs, but branches on the pair so that inputs such as predicted=1
// (which would sum to 1) are rejected instead of silently read as FN.
//
// Arguments:
//   - predicted: The predicted value (0 or 255).
//   - groundTruth: The ground-truth value (0 or 1).
//
// Returns:
//   - Outcome: The classification.
//   - bool: False when the pair is malformed.
func Classify(predicted, groundTruth uint8) (Outcome, bool) {
	switch {
	case predicted == PredictedBackground && groundTruth == GroundTruthBackground:
		return TrueNegative, true
	case predicted == PredictedBackground && groundTruth == GroundTruthForeground:
		return FalseNegative, true
	case predicted == PredictedForeground && groundTruth == GroundTruthBackground:
		return FalsePositive, true
	case predicted == PredictedForeground && groundTruth == GroundTruthForeground:
		return TruePositive, true
	default:
		return 0, false
	}
}
