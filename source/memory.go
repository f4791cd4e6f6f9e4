package source

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-segscan/images"
)

// Memory is an in-memory dataset.
type Memory struct {
	frames []images.Raster
	truths []images.Raster
	names  []string
}

// NewMemory builds a dataset from parallel frame and ground-truth slices.
func NewMemory(frames, truths []images.Raster) (*Memory, error) {
	if len(frames) != len(truths) {
		return nil, errors.Errorf("dataset has %d frames but %d masks", len(frames), len(truths))
	}
	names := make([]string, len(frames))
	for i := range names {
		names[i] = fmt.Sprintf("sample-%03d", i)
	}
	return &Memory{frames: frames, truths: truths, names: names}, nil
}

func (m *Memory) Len() int { return len(m.frames) }

func (m *Memory) Name(i int) string {
	if checkIndex(i, len(m.names)) != nil {
		return ""
	}
	return m.names[i]
}

func (m *Memory) PullByIndex(i int) (images.Raster, error) {
	if err := checkIndex(i, len(m.frames)); err != nil {
		return images.Raster{}, err
	}
	return m.frames[i], nil
}

func (m *Memory) GroundTruth(i int) (images.Raster, error) {
	if err := checkIndex(i, len(m.truths)); err != nil {
		return images.Raster{}, err
	}
	return m.truths[i], nil
}

// Frozen is a Live source that always returns the same frame. It stands in for
// the camera in headless runs and tests.
type Frozen struct {
	Frame images.Raster
}

func (f Frozen) PullLatest() images.Raster { return f.Frame }
