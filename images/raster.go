// Package images - Raster, overlay geometry and image decoding utilities.
package images

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// Channel counts supported by Raster.
const (
	// ChannelsGray is a single class/luminance channel.
	ChannelsGray = 1
	// ChannelsRGBA is four interleaved 8-bit channels.
	ChannelsRGBA = 4
)

// Raster is a rectangular grid of 8-bit pixels stored row-major with
// interleaved channels. A raster is treated as immutable once produced.
type Raster struct {
	// Width of the raster in pixels.
	Width int `json:"width" yaml:"width"`
	// Height of the raster in pixels.
	Height int `json:"height" yaml:"height"`
	// Channels per pixel (ChannelsGray or ChannelsRGBA).
	Channels int `json:"channels" yaml:"channels"`
	// Pix holds Width*Height*Channels bytes.
	Pix []uint8 `json:"-" yaml:"-"`
}

// NewRaster allocates a zeroed raster.
//
// Arguments:
//   - width: The width in pixels.
//   - height: The height in pixels.
//   - channels: The number of channels per pixel.
//
// Returns:
//   - Raster: The allocated raster.
func NewRaster(width, height, channels int) Raster {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Raster{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}
}

// GrayRaster builds a single-channel raster from values laid out row-major.
func GrayRaster(width, height int, values []uint8) (Raster, error) {
	if len(values) != width*height {
		return Raster{}, fmt.Errorf("gray raster %dx%d needs %d values, got %d", width, height, width*height, len(values))
	}
	pix := make([]uint8, len(values))
	copy(pix, values)
	return Raster{Width: width, Height: height, Channels: ChannelsGray, Pix: pix}, nil
}

// Empty reports whether the raster has a zero dimension.
func (r Raster) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Len returns the number of pixels.
func (r Raster) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Size returns the raster dimensions as a point.
func (r Raster) Size() image.Point {
	return image.Pt(r.Width, r.Height)
}

// Value returns the value of channel c at pixel (x, y).
func (r Raster) Value(x, y, c int) uint8 {
	return r.Pix[(y*r.Width+x)*r.Channels+c]
}

// Plane extracts channel c as a row-major slice of Width*Height values.
//
// Arguments:
//   - c: The channel index.
//
// Returns:
//   - []uint8: The channel values.
//   - error: An error if the channel does not exist.
func (r Raster) Plane(c int) ([]uint8, error) {
	if c < 0 || c >= r.Channels {
		return nil, fmt.Errorf("channel %d out of range for %d-channel raster", c, r.Channels)
	}
	n := r.Len()
	out := make([]uint8, n)
	if r.Channels == 1 {
		copy(out, r.Pix[:n])
		return out, nil
	}
	for i := 0; i < n; i++ {
		out[i] = r.Pix[i*r.Channels+c]
	}
	return out, nil
}

// Image returns a standard library view of the raster. Single-channel rasters
// become *image.Gray, four-channel rasters become *image.NRGBA. The returned
// image shares the raster's pixel memory and must not be written to.
func (r Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Channels {
	case ChannelsGray:
		return &image.Gray{Pix: r.Pix, Stride: r.Width, Rect: rect}
	case ChannelsRGBA:
		return &image.NRGBA{Pix: r.Pix, Stride: r.Width * 4, Rect: rect}
	default:
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
}

// FromImage copies an image into a four-channel raster.
func FromImage(img image.Image) Raster {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Raster{Width: b.Dx(), Height: b.Dy(), Channels: ChannelsRGBA, Pix: dst.Pix}
}

// FromGray copies a gray image into a single-channel raster.
func FromGray(img *image.Gray) Raster {
	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy(), ChannelsGray)
	w := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*w:(y+1)*w], img.Pix[off:off+w])
	}
	return out
}

// LabelRaster reads the red channel of every pixel into a single-channel
// raster. Label masks stored as paletted or RGB files decode through here so
// that small class values (0/1) survive unchanged. 16-bit masks keep their
// full-depth value, which must fit in 8 bits.
//
// Arguments:
//   - img: The decoded mask.
//
// Returns:
//   - Raster: The single-channel label raster.
//   - error: An error if a 16-bit label value is above 255.
func LabelRaster(img image.Image) (Raster, error) {
	switch m := img.(type) {
	case *image.Gray:
		return FromGray(m), nil
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return wideLabelRaster(img)
	}

	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy(), ChannelsGray)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.Pix[i] = c.R
			i++
		}
	}
	return out, nil
}

func wideLabelRaster(img image.Image) (Raster, error) {
	b := img.Bounds()
	out := NewRaster(b.Dx(), b.Dy(), ChannelsGray)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v uint16
			switch m := img.(type) {
			case *image.Gray16:
				v = m.Gray16At(x, y).Y
			case *image.NRGBA64:
				v = m.NRGBA64At(x, y).R
			case *image.RGBA64:
				v = m.RGBA64At(x, y).R
			}
			if v > 255 {
				return Raster{}, fmt.Errorf("label value %d at (%d,%d) does not fit in 8 bits", v, x, y)
			}
			out.Pix[i] = uint8(v)
			i++
		}
	}
	return out, nil
}
