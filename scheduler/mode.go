// Package scheduler - Single-flight scan loop: pulls frames for the current
// mode, submits them for segmentation one at a time and routes the masks to
// the presenter and the evaluator.
package scheduler

import "fmt"

// ModeKind is the operating mode of the scheduler.
type ModeKind int

const (
	// Live segments camera frames continuously.
	Live ModeKind = iota
	// TestSingle segments and evaluates one dataset image, then stops.
	TestSingle
	// AutoTest walks the whole dataset, accumulating IoU samples.
	AutoTest
)

func (k ModeKind) String() string {
	switch k {
	case Live:
		return "live"
	case TestSingle:
		return "test"
	case AutoTest:
		return "autotest"
	}
	return fmt.Sprintf("mode(%d)", int(k))
}

// Mode is the active mode and, for test modes, the dataset index.
type Mode struct {
	Kind  ModeKind
	Index int
}

func (m Mode) String() string {
	if m.Kind == Live {
		return m.Kind.String()
	}
	return fmt.Sprintf("%s[%d]", m.Kind, m.Index)
}

// Tag identifies the conditions a frame was submitted under. A completion is
// applied only if its tag's epoch is still current.
type Tag struct {
	Mode  Mode
	Epoch uint64
	Seq   uint64
}
