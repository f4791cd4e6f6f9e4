package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-segscan/images"
)

// LoadFunc loads a predictor. It runs once, on the boundary's worker goroutine.
type LoadFunc func(ctx context.Context) (Predictor, error)

type submission struct {
	frame images.Raster
	grid  Grid
}

// AsyncStats are counters of an Async boundary.
type AsyncStats struct {
	Submitted   uint64
	Completed   uint64
	Failed      uint64
	Outstanding int64
	// MaxOutstanding is the highest number of submissions ever waiting at once.
	MaxOutstanding int64
	LastLatency    time.Duration
}

// Async is a Boundary running a Predictor on a dedicated worker goroutine.
type Async struct {
	load   LoadFunc
	logger logrus.FieldLogger

	ready       chan struct{}
	failed      chan error
	submissions chan submission
	results     chan Result

	startOnce sync.Once

	submitted      atomic.Uint64
	completed      atomic.Uint64
	failures       atomic.Uint64
	outstanding    atomic.Int64
	maxOutstanding atomic.Int64
	lastLatency    atomic.Int64
}

// NewAsync creates a boundary that loads its predictor with load.
//
// Arguments:
//   - load: Loads the predictor when Start is called.
//   - queue: Capacity of the submission and result queues (minimum 1).
//   - logger: Logger for load and prediction diagnostics.
//
// Returns:
//   - *Async: The boundary. Call Start before submitting.
func NewAsync(load LoadFunc, queue int, logger logrus.FieldLogger) *Async {
	if queue < 1 {
		queue = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Async{
		load:        load,
		logger:      logger,
		ready:       make(chan struct{}),
		failed:      make(chan error, 1),
		submissions: make(chan submission, queue),
		results:     make(chan Result, queue),
	}
}

// NewAsyncPredictor wraps an already loaded predictor.
func NewAsyncPredictor(p Predictor, queue int, logger logrus.FieldLogger) *Async {
	return NewAsync(func(context.Context) (Predictor, error) { return p, nil }, queue, logger)
}

// Start loads the predictor and begins serving submissions in the background.
// Ready closes when the load succeeds; a load error is delivered on Failed.
// The worker exits when ctx is done.
func (a *Async) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		go a.run(ctx)
	})
}

func (a *Async) Ready() <-chan struct{} { return a.ready }

func (a *Async) Results() <-chan Result { return a.results }

// Failed delivers the load error, if loading fails.
func (a *Async) Failed() <-chan error { return a.failed }

// Submit enqueues a frame. It blocks only when the queue is full.
func (a *Async) Submit(frame images.Raster, grid Grid) {
	n := a.outstanding.Add(1)
	for {
		peak := a.maxOutstanding.Load()
		if n <= peak || a.maxOutstanding.CompareAndSwap(peak, n) {
			break
		}
	}
	a.submitted.Add(1)
	a.submissions <- submission{frame: frame, grid: grid}
}

// Stats returns the boundary counters.
func (a *Async) Stats() AsyncStats {
	return AsyncStats{
		Submitted:      a.submitted.Load(),
		Completed:      a.completed.Load(),
		Failed:         a.failures.Load(),
		Outstanding:    a.outstanding.Load(),
		MaxOutstanding: a.maxOutstanding.Load(),
		LastLatency:    time.Duration(a.lastLatency.Load()),
	}
}

func (a *Async) run(ctx context.Context) {
	start := time.Now()
	predictor, err := a.load(ctx)
	if err != nil {
		a.logger.WithError(err).Error("model load failed")
		a.failed <- errors.Wrap(err, "load model")
		return
	}
	a.logger.WithField("elapsed", time.Since(start)).Info("model ready")
	close(a.ready)

	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-a.submissions:
			began := time.Now()
			mask, err := predictor.Predict(ctx, sub.frame, sub.grid)
			a.lastLatency.Store(int64(time.Since(began)))
			if err == nil && (mask.Width != sub.frame.Width || mask.Height != sub.frame.Height) {
				err = errors.Errorf("mask is %dx%d, frame is %dx%d", mask.Width, mask.Height, sub.frame.Width, sub.frame.Height)
			}
			if err != nil {
				a.failures.Add(1)
				mask = images.Raster{}
			}
			a.completed.Add(1)
			a.outstanding.Add(-1)

			select {
			case a.results <- Result{Mask: mask, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
