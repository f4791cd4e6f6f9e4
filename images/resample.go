package images

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ResampleNearest scales a raster to width x height using nearest-neighbor
// sampling. Every output value is copied from some input pixel, so label
// rasters keep their value set (no interpolated in-between classes).
//
// Arguments:
//   - src: The raster to scale.
//   - width: The target width.
//   - height: The target height.
//
// Returns:
//   - Raster: The scaled raster (src itself when the size already matches).
//   - error: An error if the source is empty or the channel layout is unsupported.
func ResampleNearest(src Raster, width, height int) (Raster, error) {
	if src.Empty() {
		return Raster{}, fmt.Errorf("cannot resample empty raster")
	}
	if width <= 0 || height <= 0 {
		return Raster{}, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	if src.Width == width && src.Height == height {
		return src, nil
	}

	rect := image.Rect(0, 0, width, height)
	switch src.Channels {
	case ChannelsGray:
		dst := image.NewGray(rect)
		draw.NearestNeighbor.Scale(dst, rect, src.Image(), src.Image().Bounds(), draw.Src, nil)
		return Raster{Width: width, Height: height, Channels: ChannelsGray, Pix: dst.Pix}, nil
	case ChannelsRGBA:
		dst := image.NewNRGBA(rect)
		draw.NearestNeighbor.Scale(dst, rect, src.Image(), src.Image().Bounds(), draw.Src, nil)
		return Raster{Width: width, Height: height, Channels: ChannelsRGBA, Pix: dst.Pix}, nil
	default:
		return Raster{}, fmt.Errorf("unsupported channel count: %d", src.Channels)
	}
}
