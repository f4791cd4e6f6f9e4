package scheduler

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-segscan/evaluation"
	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/source"
	"github.com/nvr-ai/go-segscan/telemetry"
)

// DefaultTickInterval is the retry cadence while the camera is not ready.
const DefaultTickInterval = 16 * time.Millisecond

// Presenter shows frames and masks on screen.
type Presenter interface {
	// Resize is called when the overlay placement changes.
	Resize(layout images.Layout)
	// Present shows a frame with its predicted mask.
	Present(frame, mask images.Raster)
}

// Hooks are optional callbacks invoked from the scheduler goroutine. They
// must not block.
type Hooks struct {
	// OnFailure is called when a cycle fails.
	OnFailure func(err error)
	// OnSample is called after each evaluated test image.
	OnSample func(record evaluation.Record)
	// OnAutoTestComplete is called when an AutoTest run finishes the dataset.
	OnAutoTestComplete func(report evaluation.Report)
}

// Options configures a Scheduler.
type Options struct {
	Live     source.Live
	Dataset  source.Dataset
	Boundary inference.Boundary
	// Engine evaluates masks in test modes. Defaults to evaluation.NewEngine().
	Engine *evaluation.Engine
	// Presenter is optional.
	Presenter Presenter
	// Sink receives status lines. Defaults to telemetry.Discard.
	Sink telemetry.Sink
	Grid inference.Grid
	// Container is the display size the overlay is fitted into. A zero value
	// uses the frame size.
	Container image.Point
	// Model is recorded in AutoTest reports.
	Model string
	// TickInterval is the retry cadence; ignored when Ticks is set.
	TickInterval time.Duration
	// Ticks overrides the internal ticker.
	Ticks  <-chan time.Time
	Logger logrus.FieldLogger
	Hooks  Hooks
}

func (o *Options) applyDefaults() error {
	if o.Live == nil {
		return errors.New("scheduler: live source is required")
	}
	if o.Boundary == nil {
		return errors.New("scheduler: inference boundary is required")
	}
	if o.Grid == (inference.Grid{}) {
		o.Grid = inference.DefaultGrid()
	}
	if err := o.Grid.Validate(); err != nil {
		return errors.Wrap(err, "scheduler")
	}
	if o.Engine == nil {
		o.Engine = evaluation.NewEngine()
	}
	if o.Sink == nil {
		o.Sink = telemetry.Discard
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return nil
}
