package scheduler

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nvr-ai/go-segscan/evaluation"
	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/telemetry"
)

// ErrNoDataset is reported when a test mode is requested without a dataset.
var ErrNoDataset = errors.New("no test dataset configured")

// submission is the frame currently being predicted.
type submission struct {
	tag   Tag
	frame images.Raster
	sent  time.Time
}

// Scheduler runs the scan loop. All state below the events channel is owned by
// the goroutine executing Run; the public methods only post events to it.
type Scheduler struct {
	opts   Options
	logger logrus.FieldLogger
	acc    *evaluation.Accumulator
	events chan interface{}
	done   chan struct{}

	runOnce sync.Once

	// owned by Run
	mode        Mode
	initialized bool
	inFlight    bool
	outstanding submission
	pending     bool
	retry       bool
	epoch       uint64
	seq         uint64
	cursor      int
	container   image.Point
	grid        inference.Grid
	layout      images.Layout
	fps         *telemetry.FrameRate
	runStarted  time.Time
	counters    Counters
	lastSample  evaluation.Record
	hasSample   bool
	lastErr     error

	mu   sync.RWMutex
	snap Snapshot
}

// New creates a scheduler in Live mode. Nothing is scheduled before Run is
// called and the boundary reports ready.
//
// Arguments:
//   - opts: The scheduler options.
//
// Returns:
//   - *Scheduler: The scheduler.
//   - error: An error if a required collaborator is missing or the grid is invalid.
func New(opts Options) (*Scheduler, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		opts:      opts,
		logger:    opts.Logger.WithField("component", "scheduler"),
		acc:       evaluation.NewAccumulator(),
		events:    make(chan interface{}, 64),
		done:      make(chan struct{}),
		mode:      Mode{Kind: Live},
		container: opts.Container,
		grid:      opts.Grid,
		fps:       telemetry.NewFrameRate(),
	}
	s.publishSnapshot()
	return s, nil
}

// Accumulator returns the IoU accumulator of the current or last test run.
func (s *Scheduler) Accumulator() *evaluation.Accumulator { return s.acc }

// events
type (
	evtRequestCycle     struct{}
	evtEnterLive        struct{}
	evtEnterTestSingle  struct{ index int }
	evtStep             struct{ delta int }
	evtStartAutoTest    struct{}
	evtResetAccumulator struct{}
	evtSetContainer     struct{ size image.Point }
	evtSetGrid          struct{ grid inference.Grid }
)

// RequestCycle asks for a new scheduling cycle in the current mode. It is a
// no-op while a prediction is in flight, except that the request is
// remembered and served once the outstanding completion has been handled.
func (s *Scheduler) RequestCycle() { s.post(evtRequestCycle{}) }

// EnterLive switches to Live mode. Leaving AutoTest this way empties the
// accumulator.
func (s *Scheduler) EnterLive() { s.post(evtEnterLive{}) }

// EnterTestSingle switches to TestSingle at index. The index must be in
// [0, Dataset.Len()); an out-of-range index fails the cycle.
func (s *Scheduler) EnterTestSingle(index int) { s.post(evtEnterTestSingle{index: index}) }

// Next moves to the next dataset image, clamped to the last one.
func (s *Scheduler) Next() { s.post(evtStep{delta: 1}) }

// Prev moves to the previous dataset image, clamped to the first one.
func (s *Scheduler) Prev() { s.post(evtStep{delta: -1}) }

// StartAutoTest starts a fresh evaluation run over the whole dataset.
func (s *Scheduler) StartAutoTest() { s.post(evtStartAutoTest{}) }

// ResetAccumulator discards the accumulated IoU samples.
func (s *Scheduler) ResetAccumulator() { s.post(evtResetAccumulator{}) }

// SetContainer sets the display size the overlay is fitted into. It takes
// effect on the next submitted frame.
func (s *Scheduler) SetContainer(width, height int) {
	s.post(evtSetContainer{size: image.Pt(width, height)})
}

// SetGrid changes the tiling for subsequent submissions.
func (s *Scheduler) SetGrid(grid inference.Grid) error {
	if err := grid.Validate(); err != nil {
		return err
	}
	s.post(evtSetGrid{grid: grid})
	return nil
}

func (s *Scheduler) post(ev interface{}) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run executes the scan loop until ctx is done. It may be called once.
func (s *Scheduler) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("scheduler is already running")
	}
	defer close(s.done)

	ticks := s.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	ready := s.opts.Boundary.Ready()
	results := s.opts.Boundary.Results()
	s.logger.WithField("mode", s.mode.String()).Info("scan loop started")

	for {
		var retryTick <-chan time.Time
		if s.retry {
			retryTick = ticks
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scan loop stopped")
			return nil
		case <-ready:
			ready = nil
			s.initialized = true
			s.logger.Info("inference boundary ready")
			s.requestCycle()
		case res := <-results:
			s.onPredictionComplete(res)
		case ev := <-s.events:
			s.handle(ev)
		case <-retryTick:
			s.retry = false
			s.requestCycle()
		}
		s.publishSnapshot()
	}
}

func (s *Scheduler) handle(ev interface{}) {
	switch e := ev.(type) {
	case evtRequestCycle:
		s.requestCycle()
	case evtEnterLive:
		if s.mode.Kind == AutoTest {
			s.acc.Reset()
			s.reportMean()
		}
		s.transition(Mode{Kind: Live})
		s.requestCycle()
	case evtEnterTestSingle:
		if s.opts.Dataset == nil {
			s.fail(ErrNoDataset)
			return
		}
		s.cursor = e.index
		s.transition(Mode{Kind: TestSingle, Index: e.index})
		s.requestCycle()
	case evtStep:
		if s.opts.Dataset == nil {
			s.fail(ErrNoDataset)
			return
		}
		index := s.cursor
		if s.mode.Kind == TestSingle {
			index = clamp(s.mode.Index+e.delta, 0, s.opts.Dataset.Len()-1)
		}
		s.cursor = index
		s.transition(Mode{Kind: TestSingle, Index: index})
		s.requestCycle()
	case evtStartAutoTest:
		if s.opts.Dataset == nil || s.opts.Dataset.Len() == 0 {
			s.fail(ErrNoDataset)
			return
		}
		s.acc.Reset()
		s.reportMean()
		s.runStarted = time.Now()
		s.transition(Mode{Kind: AutoTest, Index: 0})
		s.requestCycle()
	case evtResetAccumulator:
		s.acc.Reset()
		s.reportMean()
	case evtSetContainer:
		s.container = e.size
	case evtSetGrid:
		s.grid = e.grid
		s.logger.WithField("grid", e.grid.String()).Info("grid changed")
	}
}

// transition makes m the current mode. Completions of frames submitted before
// the transition are discarded.
func (s *Scheduler) transition(m Mode) {
	prev := s.mode
	s.mode = m
	s.epoch++
	s.retry = false
	s.logger.WithFields(logrus.Fields{"from": prev.String(), "to": m.String()}).Debug("mode transition")
	s.reportCondition()
}

func (s *Scheduler) requestCycle() {
	if !s.initialized {
		s.pending = true
		return
	}
	if s.inFlight {
		s.pending = true
		return
	}
	s.pending = false

	var frame images.Raster
	switch s.mode.Kind {
	case Live:
		frame = s.opts.Live.PullLatest()
		if frame.Empty() {
			s.retry = true
			return
		}
	case TestSingle, AutoTest:
		if s.opts.Dataset == nil {
			s.fail(ErrNoDataset)
			return
		}
		var err error
		frame, err = s.opts.Dataset.PullByIndex(s.mode.Index)
		if err != nil {
			s.fail(errors.Wrapf(err, "pull test image %d", s.mode.Index))
			return
		}
		if frame.Empty() {
			s.fail(errors.Errorf("test image %d is empty", s.mode.Index))
			return
		}
	}
	s.retry = false

	s.fitOverlay(frame.Size())

	s.seq++
	s.outstanding = submission{
		tag:   Tag{Mode: s.mode, Epoch: s.epoch, Seq: s.seq},
		frame: frame,
		sent:  time.Now(),
	}
	s.inFlight = true
	s.counters.Submissions++
	s.opts.Boundary.Submit(frame, s.grid)
}

func (s *Scheduler) fitOverlay(frameSize image.Point) {
	layout := images.FitLayout(s.container, frameSize)
	if layout == s.layout {
		return
	}
	s.layout = layout
	s.logger.WithFields(logrus.Fields{
		"container": layout.Container.String(),
		"overlay":   layout.Overlay.String(),
	}).Debug("overlay resized")
	if s.opts.Presenter != nil {
		s.opts.Presenter.Resize(layout)
	}
}

func (s *Scheduler) onPredictionComplete(res inference.Result) {
	if !s.inFlight {
		s.logger.Warn("completion without outstanding submission")
		return
	}
	sub := s.outstanding
	s.inFlight = false
	s.outstanding = submission{}
	s.counters.Completions++

	if sub.tag.Epoch != s.epoch {
		s.counters.Stale++
		s.logger.WithFields(logrus.Fields{
			"submitted": sub.tag.Mode.String(),
			"current":   s.mode.String(),
		}).Debug("discarding stale completion")
		if s.pending {
			s.requestCycle()
		}
		return
	}

	if res.Err != nil {
		s.pending = false
		s.fail(errors.Wrapf(res.Err, "predict %s", sub.tag.Mode))
		return
	}

	if s.opts.Presenter != nil {
		s.opts.Presenter.Present(sub.frame, res.Mask)
	}
	if fps, ok := s.fps.Tick(time.Now()); ok {
		s.opts.Sink.Report(telemetry.CategoryFrameRate, telemetry.FormatRate(fps))
	}

	switch s.mode.Kind {
	case Live:
		s.requestCycle()
	case TestSingle:
		if _, err := s.evaluate(s.mode.Index, res.Mask); err != nil {
			s.fail(err)
			return
		}
		if s.pending {
			s.requestCycle()
		}
	case AutoTest:
		if _, err := s.evaluate(s.mode.Index, res.Mask); err != nil {
			s.fail(err)
			return
		}
		next := s.mode.Index + 1
		if next < s.opts.Dataset.Len() {
			s.mode.Index = next
			s.reportCondition()
			s.requestCycle()
			return
		}
		s.completeAutoTest()
		s.requestCycle()
	}
}

// evaluate compares mask to the ground truth of image index. In AutoTest the
// sample is appended to the accumulator.
func (s *Scheduler) evaluate(index int, mask images.Raster) (evaluation.Record, error) {
	truth, err := s.opts.Dataset.GroundTruth(index)
	if err != nil {
		return evaluation.Record{}, errors.Wrapf(err, "ground truth %d", index)
	}
	sample, err := s.opts.Engine.EvaluateAgainst(mask, truth)
	if err != nil {
		return evaluation.Record{}, errors.Wrapf(err, "evaluate test image %d", index)
	}

	record := evaluation.Record{
		Index:  index,
		Name:   s.opts.Dataset.Name(index),
		Counts: sample.Counts,
		IoU:    sample.IoU,
	}
	s.lastSample, s.hasSample = record, true
	s.opts.Sink.Report(telemetry.CategorySampleIoU, fmt.Sprintf("%s %s", record.Name, evaluation.FormatIoU(record.IoU)))

	if s.mode.Kind == AutoTest {
		s.acc.Append(record)
		s.reportMean()
	}

	s.logger.WithFields(logrus.Fields{
		"index":  index,
		"name":   record.Name,
		"iou":    evaluation.FormatIoU(record.IoU),
		"counts": record.Counts.String(),
	}).Debug("sample evaluated")
	if s.opts.Hooks.OnSample != nil {
		s.opts.Hooks.OnSample(record)
	}
	return record, nil
}

func (s *Scheduler) completeAutoTest() {
	report := evaluation.NewReport(s.opts.Model, s.runStarted, time.Now(), s.opts.Dataset.Len(), s.acc)
	s.logger.WithFields(logrus.Fields{
		"run":     report.RunID,
		"samples": len(report.Samples),
		"meanIoU": evaluation.FormatIoU(report.MeanIoU),
	}).Info("autotest complete")

	// natural end of the run: the accumulator is kept
	s.mode = Mode{Kind: Live}
	s.epoch++
	s.reportCondition()

	if s.opts.Hooks.OnAutoTestComplete != nil {
		s.opts.Hooks.OnAutoTestComplete(report)
	}
}

// fail ends the current cycle with err. Nothing is retried automatically; a
// failing AutoTest run stops and returns to Live with its samples kept.
func (s *Scheduler) fail(err error) {
	s.lastErr = err
	s.counters.Failures++
	s.logger.WithError(err).WithField("mode", s.mode.String()).Error("scan cycle failed")

	if s.mode.Kind == AutoTest {
		s.mode = Mode{Kind: Live}
		s.epoch++
		s.retry = false
	}
	s.opts.Sink.Report(telemetry.CategoryRunCondition, fmt.Sprintf("%s: %v", s.mode, err))

	if s.opts.Hooks.OnFailure != nil {
		s.opts.Hooks.OnFailure(err)
	}
}

func (s *Scheduler) reportCondition() {
	text := s.mode.String()
	if s.mode.Kind == AutoTest && s.opts.Dataset != nil {
		text = fmt.Sprintf("autotest %d/%d", s.mode.Index+1, s.opts.Dataset.Len())
	}
	s.opts.Sink.Report(telemetry.CategoryRunCondition, text)
}

func (s *Scheduler) reportMean() {
	s.opts.Sink.Report(telemetry.CategoryMeanIoU, fmt.Sprintf("%s (%d)", evaluation.FormatIoU(s.acc.Mean()), s.acc.Len()))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
