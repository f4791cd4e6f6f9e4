package telemetry

import (
	"fmt"
	"time"
)

// FrameRate counts events over fixed windows and reports the rate once per
// window.
type FrameRate struct {
	Window time.Duration

	count int
	start time.Time
	fps   float64
}

// NewFrameRate returns a counter with a one second window.
func NewFrameRate() *FrameRate {
	return &FrameRate{Window: time.Second}
}

// Tick counts one event at now.
//
// Returns:
//   - float64: The rate of the last completed window.
//   - bool: True when this tick closed a window.
func (f *FrameRate) Tick(now time.Time) (float64, bool) {
	if f.start.IsZero() {
		f.start = now
	}
	f.count++

	elapsed := now.Sub(f.start)
	if elapsed < f.Window {
		return f.fps, false
	}
	f.fps = float64(f.count) / elapsed.Seconds()
	f.count = 0
	f.start = now
	return f.fps, true
}

// Rate returns the rate of the last completed window.
func (f *FrameRate) Rate() float64 { return f.fps }

// FormatRate renders a frame rate for display.
func FormatRate(fps float64) string {
	return fmt.Sprintf("%.2f", fps)
}
