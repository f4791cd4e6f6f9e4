// Package inference - Asynchronous segmentation boundary, grid tiling and the
// ONNX Runtime segmentation model.
package inference

import (
	"context"

	"github.com/nvr-ai/go-segscan/images"
)

// Result is the outcome of one submitted frame.
type Result struct {
	// Mask is a single-channel raster of the submitted frame's size holding
	// 0 (background) or 255 (foreground).
	Mask images.Raster
	// Err is set when the prediction failed; Mask is then empty.
	Err error
}

// Boundary is the asynchronous prediction contract used by the scheduler.
type Boundary interface {
	// Ready is closed once the model is loaded. Submit is invalid before that.
	Ready() <-chan struct{}
	// Submit enqueues a frame for prediction and returns immediately.
	Submit(frame images.Raster, grid Grid)
	// Results delivers exactly one Result per accepted Submit, in order.
	Results() <-chan Result
}

// Predictor segments one frame synchronously.
type Predictor interface {
	Predict(ctx context.Context, frame images.Raster, grid Grid) (images.Raster, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, frame images.Raster, grid Grid) (images.Raster, error)

// Predict calls f.
func (f PredictorFunc) Predict(ctx context.Context, frame images.Raster, grid Grid) (images.Raster, error) {
	return f(ctx, frame, grid)
}
