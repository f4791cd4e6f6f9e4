// Package source - Frame sources feeding the scan scheduler: the live camera
// and the replayable test dataset.
package source

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-segscan/images"
)

// ErrIndexOutOfRange is returned when a dataset index is outside [0, Len()).
var ErrIndexOutOfRange = errors.New("dataset index out of range")

// Live provides the most recent camera frame.
type Live interface {
	// PullLatest returns the latest frame, or an empty raster while the camera
	// has not produced one yet.
	PullLatest() images.Raster
}

// Dataset is an ordered, index-addressable collection of test images with a
// ground-truth mask per image.
type Dataset interface {
	// Len returns the number of images.
	Len() int
	// PullByIndex returns image i.
	PullByIndex(i int) (images.Raster, error)
	// GroundTruth returns the label mask of image i.
	GroundTruth(i int) (images.Raster, error)
	// Name returns a display name for image i.
	Name(i int) string
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, n)
	}
	return nil
}
