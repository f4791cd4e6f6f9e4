package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// Normalization holds per-channel RGB mean and standard deviation applied
// after scaling pixel values to [0,1].
type Normalization struct {
	Mean [3]float32 `json:"mean" yaml:"mean"`
	Std  [3]float32 `json:"std" yaml:"std"`
}

// Identity leaves pixel values in [0,1].
var Identity = Normalization{Mean: [3]float32{0, 0, 0}, Std: [3]float32{1, 1, 1}}

// ImageNet is the usual torchvision normalization.
var ImageNet = Normalization{
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// PrepareInput resizes img to width x height and writes it into dst as
// normalized planar RGB (CHW).
//
// Arguments:
//   - img: The image to prepare.
//   - dst: The destination tensor data, at least 3*width*height floats.
//   - width: The model input width.
//   - height: The model input height.
//   - norm: The normalization to apply.
//
// Returns:
//   - error: An error if dst is too small.
func PrepareInput(img image.Image, dst []float32, width, height int, norm Normalization) error {
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	for c := 0; c < 3; c++ {
		if norm.Std[c] == 0 {
			return errors.Errorf("normalization std of channel %d is zero", c)
		}
	}

	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		b = img.Bounds()
	}

	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			red[i] = (float32(r>>8)/255.0 - norm.Mean[0]) / norm.Std[0]
			green[i] = (float32(g>>8)/255.0 - norm.Mean[1]) / norm.Std[1]
			blue[i] = (float32(bl>>8)/255.0 - norm.Mean[2]) / norm.Std[2]
			i++
		}
	}
	return nil
}
