package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/source"
)

// fakeBoundary records submissions; tests complete them explicitly or via an
// automatic responder.
type fakeBoundary struct {
	ready   chan struct{}
	results chan inference.Result
	subs    chan inference.Grid

	mu          sync.Mutex
	frames      []images.Raster
	outstanding int
	violations  int
}

func newFakeBoundary() *fakeBoundary {
	return &fakeBoundary{
		ready:   make(chan struct{}),
		results: make(chan inference.Result),
		subs:    make(chan inference.Grid, 1024),
	}
}

func (b *fakeBoundary) Ready() <-chan struct{} { return b.ready }
func (b *fakeBoundary) Results() <-chan inference.Result { return b.results }

func (b *fakeBoundary) Submit(frame images.Raster, grid inference.Grid) {
	b.mu.Lock()
	b.frames = append(b.frames, frame)
	b.outstanding++
	if b.outstanding > 1 {
		b.violations++
	}
	b.mu.Unlock()
	b.subs <- grid
}

func (b *fakeBoundary) lastFrame() images.Raster {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[len(b.frames)-1]
}

func (b *fakeBoundary) submitted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// awaitSubmit waits for the next submission.
func (b *fakeBoundary) awaitSubmit(t *testing.T) inference.Grid {
	t.Helper()
	select {
	case g := <-b.subs:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("no submission")
	}
	return inference.Grid{}
}

func (b *fakeBoundary) assertNoSubmit(t *testing.T) {
	t.Helper()
	select {
	case <-b.subs:
		t.Fatal("unexpected submission")
	case <-time.After(30 * time.Millisecond):
	}
}

// complete delivers a result for the outstanding submission.
func (b *fakeBoundary) complete(t *testing.T, res inference.Result) {
	t.Helper()
	b.mu.Lock()
	b.outstanding--
	b.mu.Unlock()
	select {
	case b.results <- res:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not take the result")
	}
}

// respond completes every submission with predict until ctx is done.
func (b *fakeBoundary) respond(ctx context.Context, predict func(images.Raster) inference.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.subs:
		}
		frame := b.lastFrame()
		b.mu.Lock()
		b.outstanding--
		b.mu.Unlock()
		select {
		case b.results <- predict(frame):
		case <-ctx.Done():
			return
		}
	}
}

// fakeLive returns empty frames until ready is set.
type fakeLive struct {
	ready atomic.Bool
	pulls atomic.Int64
	frame images.Raster
}

func (l *fakeLive) PullLatest() images.Raster {
	l.pulls.Add(1)
	if !l.ready.Load() {
		return images.Raster{}
	}
	return l.frame
}

type fakePresenter struct {
	mu       sync.Mutex
	layouts  []images.Layout
	presents int
}

func (p *fakePresenter) Resize(layout images.Layout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.layouts = append(p.layouts, layout)
}

func (p *fakePresenter) Present(frame, mask images.Raster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presents++
}

func (p *fakePresenter) presented() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presents
}

// rgba returns a w x h frame whose red channel is tag, so tests can tell
// frames apart.
func rgba(w, h int, tag uint8) images.Raster {
	r := images.NewRaster(w, h, images.ChannelsRGBA)
	for i := 0; i < len(r.Pix); i += 4 {
		r.Pix[i] = tag
		r.Pix[i+3] = 255
	}
	return r
}

func gray(w, h int, v uint8) images.Raster {
	r := images.NewRaster(w, h, images.ChannelsGray)
	for i := range r.Pix {
		r.Pix[i] = v
	}
	return r
}

// newDataset builds n 4x2 images; image i has foreground in its first i%4
// columns.
func newDataset(t *testing.T, n int) *source.Memory {
	t.Helper()
	frames := make([]images.Raster, n)
	truths := make([]images.Raster, n)
	for i := 0; i < n; i++ {
		frames[i] = rgba(4, 2, uint8(i))
		truth := gray(4, 2, 0)
		for y := 0; y < 2; y++ {
			for x := 0; x < i%4; x++ {
				truth.Pix[y*4+x] = 1
			}
		}
		truths[i] = truth
	}
	ds, err := source.NewMemory(frames, truths)
	require.NoError(t, err)
	return ds
}

// perfectMask predicts exactly the ground truth of newDataset images.
func perfectMask(frame images.Raster) inference.Result {
	i := int(frame.Pix[0])
	mask := gray(frame.Width, frame.Height, 0)
	for y := 0; y < frame.Height; y++ {
		for x := 0; x < i%4; x++ {
			mask.Pix[y*frame.Width+x] = 255
		}
	}
	return inference.Result{Mask: mask}
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type harness struct {
	s        *Scheduler
	boundary *fakeBoundary
	live     *fakeLive
	ticks    chan time.Time
	cancel   context.CancelFunc
	stopped  chan struct{}
}

func startHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		boundary: newFakeBoundary(),
		live:     &fakeLive{frame: rgba(8, 6, 200)},
		ticks:    make(chan time.Time, 1),
		stopped:  make(chan struct{}),
	}
	if opts.Live == nil {
		opts.Live = h.live
	}
	opts.Boundary = h.boundary
	opts.Ticks = h.ticks
	opts.Logger = quietLogger()

	s, err := New(opts)
	require.NoError(t, err)
	h.s = s

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = s.Run(ctx)
	}()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.stopped
}

func (h *harness) tick() {
	select {
	case h.ticks <- time.Now():
	default:
	}
}
