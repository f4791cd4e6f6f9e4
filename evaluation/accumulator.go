package evaluation

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Record is one accumulated evaluation.
type Record struct {
	Index  int             `json:"index" yaml:"index"`
	Name   string          `json:"name,omitempty" yaml:"name,omitempty"`
	Counts ConfusionCounts `json:"counts" yaml:"counts"`
	IoU    float64         `json:"iou" yaml:"iou"`
}

// Accumulator keeps the ordered IoU samples of a test run. Samples are only
// appended; Reset empties the run. The mean excludes NaN samples and is NaN
// when no finite sample exists.
type Accumulator struct {
	mu      sync.RWMutex
	records []Record
	mean    float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{mean: math.NaN()}
}

// Append adds a record and recomputes the mean over every sample so far.
//
// Returns:
//   - float64: The updated mean IoU.
func (a *Accumulator) Append(r Record) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, r)
	a.mean = meanIgnoringNaN(a.records)
	return a.mean
}

// Len returns the number of samples.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Samples returns a copy of the IoU samples in append order.
func (a *Accumulator) Samples() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]float64, len(a.records))
	for i, r := range a.records {
		out[i] = r.IoU
	}
	return out
}

// Records returns a copy of the accumulated records.
func (a *Accumulator) Records() []Record {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// Mean returns the mean IoU of the finite samples.
func (a *Accumulator) Mean() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.records) == 0 {
		return math.NaN()
	}
	return a.mean
}

// Reset discards every sample.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = nil
	a.mean = math.NaN()
}

func meanIgnoringNaN(records []Record) float64 {
	finite := make([]float64, 0, len(records))
	for _, r := range records {
		if !math.IsNaN(r.IoU) {
			finite = append(finite, r.IoU)
		}
	}
	if len(finite) == 0 {
		return math.NaN()
	}
	return stat.Mean(finite, nil)
}
