package scheduler

import (
	"github.com/nvr-ai/go-segscan/evaluation"
	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
)

// Counters track the traffic through the scan loop.
type Counters struct {
	Submissions uint64
	Completions uint64
	Stale       uint64
	Failures    uint64
}

// Snapshot is a point-in-time copy of the scheduler state.
type Snapshot struct {
	Mode        Mode
	Initialized bool
	InFlight    bool
	Pending     bool
	Retrying    bool
	Layout      images.Layout
	Grid        inference.Grid
	Counters    Counters
	// LastSample is the most recent evaluation, valid when HasSample is set.
	LastSample evaluation.Record
	HasSample  bool
	LastError  error
	Samples    []float64
	MeanIoU    float64
}

// Snapshot returns the current state. It is safe to call from any goroutine.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Samples = append([]float64(nil), s.snap.Samples...)
	return snap
}

// publishSnapshot copies the loop state and the accumulator view under one lock.
func (s *Scheduler) publishSnapshot() {
	samples := s.acc.Samples()
	mean := s.acc.Mean()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{
		Mode:        s.mode,
		Initialized: s.initialized,
		InFlight:    s.inFlight,
		Pending:     s.pending,
		Retrying:    s.retry,
		Layout:      s.layout,
		Grid:        s.grid,
		Counters:    s.counters,
		LastSample:  s.lastSample,
		HasSample:   s.hasSample,
		LastError:   s.lastErr,
		Samples:     samples,
		MeanIoU:     mean,
	}
}
