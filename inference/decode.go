package inference

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// OutputLayout describes how a model encodes its segmentation output.
type OutputLayout string

const (
	// LayoutLogit is one channel of foreground logits.
	LayoutLogit OutputLayout = "logit"
	// LayoutProbability is one channel of foreground probabilities.
	LayoutProbability OutputLayout = "probability"
	// LayoutClasses is one channel of scores per class; the best class wins.
	LayoutClasses OutputLayout = "classes"
)

// ParseOutputLayout parses a layout name, ignoring case.
func ParseOutputLayout(s string) (OutputLayout, error) {
	switch OutputLayout(strings.ToLower(s)) {
	case LayoutLogit:
		return LayoutLogit, nil
	case LayoutProbability:
		return LayoutProbability, nil
	case LayoutClasses:
		return LayoutClasses, nil
	}
	return "", errors.Errorf("unknown output layout %q", s)
}

// Mask values written by decoders.
const (
	Background uint8 = 0
	Foreground uint8 = 255
)

// OutputDecoder turns raw model output into a 0/255 mask.
type OutputDecoder struct {
	Layout OutputLayout
	Width  int
	Height int
	// Classes is the channel count for LayoutClasses.
	Classes int
	// ForegroundClass is the class index treated as foreground for LayoutClasses.
	ForegroundClass int
	// Threshold is the foreground probability cut for single-channel layouts.
	Threshold float32
}

func (d OutputDecoder) String() string {
	return fmt.Sprintf("%s %dx%d classes=%d fg=%d t=%.2f", d.Layout, d.Width, d.Height, d.Classes, d.ForegroundClass, d.Threshold)
}

// OutputSize returns the number of floats the decoder consumes.
func (d OutputDecoder) OutputSize() int {
	if d.Layout == LayoutClasses {
		return d.Classes * d.Width * d.Height
	}
	return d.Width * d.Height
}

// Decode converts output data into a Width*Height mask.
//
// Arguments:
//   - data: The raw output tensor data.
//
// Returns:
//   - []uint8: The mask, Foreground or Background per pixel.
//   - error: An error if data is too short or the layout is unknown.
func (d OutputDecoder) Decode(data []float32) ([]uint8, error) {
	if d.Width <= 0 || d.Height <= 0 {
		return nil, errors.Errorf("invalid output size %dx%d", d.Width, d.Height)
	}
	need := d.OutputSize()
	if len(data) < need {
		return nil, errors.Errorf("output holds %d floats, needs %d", len(data), need)
	}

	switch d.Layout {
	case LayoutLogit:
		return thresholdPlane(data[:need], d.Threshold, sigmoid), nil
	case LayoutProbability:
		return thresholdPlane(data[:need], d.Threshold, func(v float32) float32 { return v }), nil
	case LayoutClasses:
		return d.decodeClasses(data[:need])
	}
	return nil, errors.Errorf("unknown output layout %q", d.Layout)
}

func (d OutputDecoder) decodeClasses(data []float32) ([]uint8, error) {
	if d.ForegroundClass < 0 || d.ForegroundClass >= d.Classes {
		return nil, errors.Errorf("foreground class %d out of range for %d classes", d.ForegroundClass, d.Classes)
	}

	plane := d.Width * d.Height
	scores := tensor.New(tensor.WithShape(d.Classes, plane), tensor.WithBacking(data))
	best, err := scores.Argmax(0)
	if err != nil {
		return nil, errors.Wrap(err, "argmax over classes")
	}
	indices, ok := best.Data().([]int)
	if !ok {
		return nil, errors.Errorf("unexpected argmax data type %T", best.Data())
	}

	mask := make([]uint8, plane)
	for i, class := range indices {
		if class == d.ForegroundClass {
			mask[i] = Foreground
		}
	}
	return mask, nil
}

func thresholdPlane(data []float32, threshold float32, activate func(float32) float32) []uint8 {
	mask := make([]uint8, len(data))
	for i, v := range data {
		if activate(v) > threshold {
			mask[i] = Foreground
		}
	}
	return mask
}

func sigmoid(v float32) float32 {
	return 1 / (1 + math32.Exp(-v))
}
