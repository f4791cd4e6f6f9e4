package scheduler

import (
	"context"
	"image"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-segscan/evaluation"
	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/telemetry"
)

const waitFor = 2 * time.Second

func eventually(t *testing.T, cond func(Snapshot) bool, h *harness, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.s.Snapshot()) }, waitFor, 2*time.Millisecond, msg)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{Boundary: newFakeBoundary()})
	assert.Error(t, err)
	_, err = New(Options{Live: &fakeLive{}})
	assert.Error(t, err)
	_, err = New(Options{Live: &fakeLive{}, Boundary: newFakeBoundary(), Grid: inference.Grid{Columns: 4, Rows: 1}})
	assert.Error(t, err)
}

func TestScheduler_NothingBeforeReady(t *testing.T) {
	h := startHarness(t, Options{})
	h.live.ready.Store(true)

	h.s.RequestCycle()
	h.boundary.assertNoSubmit(t)
	assert.False(t, h.s.Snapshot().Initialized)

	close(h.boundary.ready)
	h.boundary.awaitSubmit(t)
	eventually(t, func(s Snapshot) bool { return s.Initialized && s.InFlight }, h, "initialized and in flight")
}

func TestScheduler_LiveRetriesOnTickUntilCameraReady(t *testing.T) {
	h := startHarness(t, Options{})
	close(h.boundary.ready)

	eventually(t, func(s Snapshot) bool { return s.Retrying }, h, "retry armed")
	h.boundary.assertNoSubmit(t)

	pulls := h.live.pulls.Load()
	h.tick()
	require.Eventually(t, func() bool { return h.live.pulls.Load() > pulls }, waitFor, time.Millisecond)
	h.boundary.assertNoSubmit(t)

	h.live.ready.Store(true)
	h.tick()
	h.boundary.awaitSubmit(t)
	eventually(t, func(s Snapshot) bool { return s.InFlight && !s.Retrying }, h, "submitted")
}

func TestScheduler_LiveLoopsOnCompletion(t *testing.T) {
	presenter := &fakePresenter{}
	h := startHarness(t, Options{Presenter: presenter, Container: image.Pt(16, 16)})
	h.live.ready.Store(true)
	close(h.boundary.ready)

	for i := 0; i < 3; i++ {
		h.boundary.awaitSubmit(t)
		h.boundary.complete(t, inference.Result{Mask: gray(8, 6, 0)})
	}
	h.boundary.awaitSubmit(t)
	assert.Equal(t, 3, presenter.presented())

	presenter.mu.Lock()
	require.Len(t, presenter.layouts, 1)
	assert.Equal(t, images.OverlayRect{Width: 16, Height: 12, XOffset: 0, YOffset: 2}, presenter.layouts[0].Overlay)
	presenter.mu.Unlock()

	eventually(t, func(s Snapshot) bool {
		return s.Counters.Submissions == 4 && s.Counters.Completions == 3
	}, h, "counters")
}

func TestScheduler_RequestCycleIsSingleFlight(t *testing.T) {
	h := startHarness(t, Options{})
	h.live.ready.Store(true)
	close(h.boundary.ready)
	h.boundary.awaitSubmit(t)

	for i := 0; i < 10; i++ {
		h.s.RequestCycle()
	}
	h.boundary.assertNoSubmit(t)
	eventually(t, func(s Snapshot) bool { return s.Pending }, h, "request remembered")
	assert.Equal(t, 1, h.boundary.submitted())
}

func TestScheduler_TestSingleEvaluatesAndStops(t *testing.T) {
	ds := newDataset(t, 4)
	board := telemetry.NewBoard()
	h := startHarness(t, Options{Dataset: ds, Sink: board})
	close(h.boundary.ready)

	h.s.EnterTestSingle(2)
	h.boundary.awaitSubmit(t)
	assert.Equal(t, uint8(2), h.boundary.lastFrame().Pix[0])
	h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))

	eventually(t, func(s Snapshot) bool { return s.HasSample }, h, "sample evaluated")
	h.boundary.assertNoSubmit(t)

	snap := h.s.Snapshot()
	assert.Equal(t, Mode{Kind: TestSingle, Index: 2}, snap.Mode)
	assert.Equal(t, 1.0, snap.LastSample.IoU)
	assert.Equal(t, 4, snap.LastSample.Counts.TruePositive)
	assert.Empty(t, snap.Samples, "single tests do not accumulate")

	text, ok := board.Get(telemetry.CategorySampleIoU)
	require.True(t, ok)
	assert.Contains(t, text, "1.0000")
}

func TestScheduler_NextPrevClamp(t *testing.T) {
	ds := newDataset(t, 3)
	h := startHarness(t, Options{Dataset: ds})
	close(h.boundary.ready)

	steps := []struct {
		do       func()
		expected int
	}{
		{func() { h.s.EnterTestSingle(1) }, 1},
		{h.s.Next, 2},
		{h.s.Next, 2},
		{h.s.Prev, 1},
		{h.s.Prev, 0},
		{h.s.Prev, 0},
	}
	for _, step := range steps {
		step.do()
		h.boundary.awaitSubmit(t)
		assert.Equal(t, uint8(step.expected), h.boundary.lastFrame().Pix[0])
		h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
		eventually(t, func(s Snapshot) bool { return !s.InFlight }, h, "completed")
	}
}

func TestScheduler_StaleCompletionIsDiscarded(t *testing.T) {
	ds := newDataset(t, 3)
	presenter := &fakePresenter{}
	h := startHarness(t, Options{Dataset: ds, Presenter: presenter})
	h.live.ready.Store(true)
	close(h.boundary.ready)

	h.boundary.awaitSubmit(t)
	h.s.EnterTestSingle(1)
	eventually(t, func(s Snapshot) bool { return s.Mode.Kind == TestSingle && s.Pending }, h, "pending test request")
	h.boundary.assertNoSubmit(t)

	// the live frame finishes after the mode changed
	h.boundary.complete(t, inference.Result{Mask: gray(8, 6, 0)})
	h.boundary.awaitSubmit(t)
	assert.Equal(t, uint8(1), h.boundary.lastFrame().Pix[0])
	assert.Equal(t, 0, presenter.presented())

	h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
	eventually(t, func(s Snapshot) bool { return s.HasSample }, h, "test sample")

	snap := h.s.Snapshot()
	assert.Equal(t, uint64(1), snap.Counters.Stale)
	assert.Equal(t, 1, snap.LastSample.Index)
	assert.Equal(t, 1, presenter.presented())
	h.boundary.assertNoSubmit(t)
}

func TestScheduler_AutoTestRunsWholeDatasetThenReturnsToLive(t *testing.T) {
	const n = 6
	ds := newDataset(t, n)
	reports := make(chan evaluation.Report, 1)
	h := startHarness(t, Options{
		Dataset: ds,
		Model:   "fake",
		Hooks:   Hooks{OnAutoTestComplete: func(r evaluation.Report) { reports <- r }},
	})
	close(h.boundary.ready)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.boundary.respond(ctx, perfectMask)

	h.s.StartAutoTest()

	var report evaluation.Report
	select {
	case report = <-reports:
	case <-time.After(waitFor):
		t.Fatal("autotest did not complete")
	}

	require.Len(t, report.Samples, n)
	for i, rec := range report.Samples {
		assert.Equal(t, i, rec.Index)
		if i%4 == 0 {
			assert.True(t, math.IsNaN(rec.IoU), "image %d has no foreground", i)
		} else {
			assert.Equal(t, 1.0, rec.IoU)
		}
	}
	assert.Equal(t, 1.0, report.MeanIoU)
	assert.Equal(t, n, report.DatasetLength)
	assert.Equal(t, "fake", report.Model)

	eventually(t, func(s Snapshot) bool { return s.Mode.Kind == Live }, h, "back to live")
	snap := h.s.Snapshot()
	assert.Len(t, snap.Samples, n, "natural termination keeps the samples")
	assert.Equal(t, 1.0, snap.MeanIoU)
}

func TestScheduler_SnapshotSamplesMatchMode(t *testing.T) {
	const n = 40
	ds := newDataset(t, n)
	done := make(chan struct{})
	h := startHarness(t, Options{
		Dataset: ds,
		Hooks:   Hooks{OnAutoTestComplete: func(evaluation.Report) { close(done) }},
	})
	close(h.boundary.ready)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.boundary.respond(ctx, func(frame images.Raster) inference.Result {
		time.Sleep(time.Millisecond)
		return perfectMask(frame)
	})

	h.s.StartAutoTest()
	timeout := time.After(waitFor)
	checked := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		case <-timeout:
			t.Fatal("autotest did not complete")
		default:
			snap := h.s.Snapshot()
			if snap.Mode.Kind == AutoTest {
				require.Len(t, snap.Samples, snap.Mode.Index, "samples must match the AutoTest cursor")
				checked++
			}
		}
	}
	assert.Positive(t, checked)
}

func TestScheduler_LeavingAutoTestResetsAccumulator(t *testing.T) {
	ds := newDataset(t, 4)
	h := startHarness(t, Options{Dataset: ds})
	close(h.boundary.ready)

	h.s.StartAutoTest()
	h.boundary.awaitSubmit(t)
	h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
	h.boundary.awaitSubmit(t)
	eventually(t, func(s Snapshot) bool { return len(s.Samples) == 1 }, h, "one sample")

	h.s.EnterLive()
	eventually(t, func(s Snapshot) bool { return s.Mode.Kind == Live }, h, "live")
	snap := h.s.Snapshot()
	assert.Empty(t, snap.Samples)
	assert.True(t, math.IsNaN(snap.MeanIoU))

	// the AutoTest frame still in flight is stale now
	h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
	eventually(t, func(s Snapshot) bool { return s.Counters.Stale == 1 }, h, "stale")
	assert.Empty(t, h.s.Snapshot().Samples)
}

func TestScheduler_ResetAccumulator(t *testing.T) {
	ds := newDataset(t, 2)
	done := make(chan struct{}, 1)
	h := startHarness(t, Options{
		Dataset: ds,
		Hooks:   Hooks{OnAutoTestComplete: func(evaluation.Report) { done <- struct{}{} }},
	})
	close(h.boundary.ready)

	h.s.StartAutoTest()
	for i := 0; i < 2; i++ {
		h.boundary.awaitSubmit(t)
		h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
	}
	<-done
	eventually(t, func(s Snapshot) bool { return len(s.Samples) == 2 }, h, "two samples")

	h.s.ResetAccumulator()
	eventually(t, func(s Snapshot) bool { return len(s.Samples) == 0 }, h, "reset")
}

func TestScheduler_PredictionFailureIsTerminalForCycle(t *testing.T) {
	var (
		mu       sync.Mutex
		failures []error
	)
	h := startHarness(t, Options{Hooks: Hooks{OnFailure: func(err error) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	}}})
	h.live.ready.Store(true)
	close(h.boundary.ready)

	h.boundary.awaitSubmit(t)
	h.boundary.complete(t, inference.Result{Err: errors.New("runtime crashed")})
	eventually(t, func(s Snapshot) bool { return s.LastError != nil && !s.InFlight }, h, "failure recorded")
	h.boundary.assertNoSubmit(t)

	mu.Lock()
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "runtime crashed")
	mu.Unlock()

	// the caller decides to resume
	h.s.RequestCycle()
	h.boundary.awaitSubmit(t)
}

func TestScheduler_MalformedMaskHaltsAutoTest(t *testing.T) {
	ds := newDataset(t, 4)
	failures := make(chan error, 1)
	h := startHarness(t, Options{Dataset: ds, Hooks: Hooks{OnFailure: func(err error) { failures <- err }}})
	close(h.boundary.ready)

	h.s.StartAutoTest()
	h.boundary.awaitSubmit(t)
	h.boundary.complete(t, perfectMask(h.boundary.lastFrame()))
	h.boundary.awaitSubmit(t)
	h.boundary.complete(t, inference.Result{Mask: gray(4, 2, 7)})

	select {
	case err := <-failures:
		assert.True(t, errors.Is(err, evaluation.ErrMalformedMask))
	case <-time.After(waitFor):
		t.Fatal("malformed mask not surfaced")
	}
	eventually(t, func(s Snapshot) bool { return s.Mode.Kind == Live }, h, "halted to live")
	assert.Len(t, h.s.Snapshot().Samples, 1)
}

func TestScheduler_IndexOutOfRangeFailsCycle(t *testing.T) {
	ds := newDataset(t, 2)
	h := startHarness(t, Options{Dataset: ds})
	close(h.boundary.ready)

	h.s.EnterTestSingle(5)
	eventually(t, func(s Snapshot) bool { return s.LastError != nil }, h, "error")
	h.boundary.assertNoSubmit(t)
}

func TestScheduler_TestModesWithoutDataset(t *testing.T) {
	h := startHarness(t, Options{})
	close(h.boundary.ready)

	h.s.StartAutoTest()
	eventually(t, func(s Snapshot) bool { return errors.Is(s.LastError, ErrNoDataset) }, h, "no dataset")
	assert.Equal(t, Live, h.s.Snapshot().Mode.Kind)
}

func TestScheduler_SetGridAndContainer(t *testing.T) {
	presenter := &fakePresenter{}
	h := startHarness(t, Options{Presenter: presenter})
	h.live.ready.Store(true)
	close(h.boundary.ready)

	want := inference.Grid{Columns: 2, Rows: 3, Margin: 4}
	assert.Error(t, h.s.SetGrid(inference.Grid{Columns: 0, Rows: 1}))
	h.s.SetContainer(32, 12)
	require.NoError(t, h.s.SetGrid(want))

	// the first frame may already be on its way with the old settings
	h.boundary.awaitSubmit(t)
	eventually(t, func(s Snapshot) bool { return s.Grid == want }, h, "grid applied")
	h.boundary.complete(t, inference.Result{Mask: gray(8, 6, 0)})
	assert.Equal(t, want, h.boundary.awaitSubmit(t))

	eventually(t, func(s Snapshot) bool {
		return s.Layout.Container == image.Pt(32, 12) &&
			s.Layout.Overlay == images.OverlayRect{Width: 16, Height: 12, XOffset: 8, YOffset: 0}
	}, h, "overlay refitted")
}

// TestScheduler_SingleFlightUnderRandomCalls drives the public API with a
// random call sequence while an automatic responder completes submissions.
func TestScheduler_SingleFlightUnderRandomCalls(t *testing.T) {
	ds := newDataset(t, 5)
	h := startHarness(t, Options{Dataset: ds})
	h.live.ready.Store(true)
	close(h.boundary.ready)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.boundary.respond(ctx, func(frame images.Raster) inference.Result {
		time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
		if frame.Width == 4 {
			return perfectMask(frame)
		}
		return inference.Result{Mask: gray(frame.Width, frame.Height, 0)}
	})

	rng := rand.New(rand.NewSource(42))
	calls := []func(){
		h.s.RequestCycle,
		h.s.EnterLive,
		func() { h.s.EnterTestSingle(rng.Intn(5)) },
		h.s.Next,
		h.s.Prev,
		h.s.StartAutoTest,
		h.s.ResetAccumulator,
		func() { _ = h.s.SetGrid(inference.Grid{Columns: 1 + rng.Intn(3), Rows: 1 + rng.Intn(3)}) },
		h.tick,
	}
	for i := 0; i < 2000; i++ {
		calls[rng.Intn(len(calls))]()
		if rng.Intn(10) == 0 {
			time.Sleep(time.Duration(rng.Intn(300)) * time.Microsecond)
		}
	}
	cancel()
	h.stop()

	h.boundary.mu.Lock()
	defer h.boundary.mu.Unlock()
	assert.Zero(t, h.boundary.violations, "more than one submission outstanding")
	assert.NotZero(t, len(h.boundary.frames))
}
