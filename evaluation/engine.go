package evaluation

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-segscan/images"
)

// Sample is the result of evaluating one predicted mask.
type Sample struct {
	Counts ConfusionCounts `json:"counts" yaml:"counts"`
	IoU    float64         `json:"iou" yaml:"iou"`
}

// Engine compares predicted masks to ground truth.
//
// Ground truth with a different size than the prediction is resampled to the
// prediction's size with nearest-neighbor sampling before comparison.
type Engine struct {
	// PredictedChannel is the reference channel of the predicted mask.
	PredictedChannel int
	// GroundTruthChannel is the reference channel of the ground-truth mask.
	GroundTruthChannel int
}

// NewEngine returns an engine reading channel 0 of both rasters.
func NewEngine() *Engine {
	return &Engine{}
}

// EvaluateAgainst classifies every pixel of predicted against groundTruth.
//
// Arguments:
//   - predicted: The predicted mask (values 0/255 in PredictedChannel).
//   - groundTruth: The label mask (values 0/1 in GroundTruthChannel).
//
// Returns:
//   - Sample: Confusion counts and IoU (NaN when there is no foreground anywhere).
//   - error: A *MalformedMaskError for out-of-contract values, or an error for
//     empty rasters and missing channels.
func (e *Engine) EvaluateAgainst(predicted, groundTruth images.Raster) (Sample, error) {
	if predicted.Empty() {
		return Sample{}, errors.New("predicted mask is empty")
	}
	if groundTruth.Empty() {
		return Sample{}, errors.New("ground truth mask is empty")
	}

	if groundTruth.Width != predicted.Width || groundTruth.Height != predicted.Height {
		scaled, err := images.ResampleNearest(groundTruth, predicted.Width, predicted.Height)
		if err != nil {
			return Sample{}, errors.Wrap(err, "resample ground truth")
		}
		groundTruth = scaled
	}

	pred, err := predicted.Plane(e.PredictedChannel)
	if err != nil {
		return Sample{}, errors.Wrap(err, "predicted mask")
	}
	truth, err := groundTruth.Plane(e.GroundTruthChannel)
	if err != nil {
		return Sample{}, errors.Wrap(err, "ground truth mask")
	}

	var counts ConfusionCounts
	for i := range pred {
		outcome, ok := Classify(pred[i], truth[i])
		if !ok {
			return Sample{}, &MalformedMaskError{
				X:           i % predicted.Width,
				Y:           i / predicted.Width,
				Predicted:   pred[i],
				GroundTruth: truth[i],
			}
		}
		counts.Add(outcome)
	}

	return Sample{Counts: counts, IoU: counts.IoU()}, nil
}
