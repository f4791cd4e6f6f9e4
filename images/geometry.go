package images

import (
	"fmt"
	"image"
)

// OverlayRect is the placement of a fitted source inside a display container.
type OverlayRect struct {
	Width   int `json:"width" yaml:"width"`
	Height  int `json:"height" yaml:"height"`
	XOffset int `json:"xOffset" yaml:"xOffset"`
	YOffset int `json:"yOffset" yaml:"yOffset"`
}

// Rectangle returns the overlay as an image.Rectangle in container coordinates.
func (o OverlayRect) Rectangle() image.Rectangle {
	return image.Rect(o.XOffset, o.YOffset, o.XOffset+o.Width, o.YOffset+o.Height)
}

// String returns a human-readable summary of the overlay.
func (o OverlayRect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", o.Width, o.Height, o.XOffset, o.YOffset)
}

// Layout pairs a container size with the overlay fitted inside it.
type Layout struct {
	Container image.Point `json:"container" yaml:"container"`
	Overlay   OverlayRect `json:"overlay" yaml:"overlay"`
}

// Fit maps a source raster onto a display container while preserving the
// source aspect ratio (letterbox or pillarbox).
//
// When the container is relatively wider than the source the overlay takes the
// full container height and is centered horizontally; otherwise it takes the
// full container width and is centered vertically. Every output is the floor
// of the real-valued result, so up to one pixel of the non-dominant axis may be
// left unfilled. Downstream buffer sizing depends on that flooring.
//
// The arithmetic is exact (integer cross-multiplication), so results never
// drift across an integer boundary because of floating point error.
//
// Arguments:
//   - containerW: The container width.
//   - containerH: The container height.
//   - sourceW: The source width, must be > 0.
//   - sourceH: The source height, must be > 0.
//
// Returns:
//   - OverlayRect: The fitted rectangle, or the zero rect for a degenerate source.
func Fit(containerW, containerH, sourceW, sourceH int) OverlayRect {
	if sourceW <= 0 || sourceH <= 0 || containerW < 0 || containerH < 0 {
		return OverlayRect{}
	}

	cw, ch := int64(containerW), int64(containerH)
	sw, sh := int64(sourceW), int64(sourceH)

	// cw/ch > sw/sh
	if cw*sh > sw*ch {
		// height-bound: width = ch*sw/sh, xOffset = (cw - width)/2
		return OverlayRect{
			Width:   int(ch * sw / sh),
			Height:  containerH,
			XOffset: int((cw*sh - ch*sw) / (2 * sh)),
			YOffset: 0,
		}
	}

	// width-bound: height = cw*sh/sw, yOffset = (ch - height)/2
	return OverlayRect{
		Width:   containerW,
		Height:  int(cw * sh / sw),
		XOffset: 0,
		YOffset: int((ch*sw - cw*sh) / (2 * sw)),
	}
}

// FitLayout fits a source of the given size into a container. A zero container
// falls back to the source size, which yields an identity overlay.
func FitLayout(container, source image.Point) Layout {
	if container.X <= 0 || container.Y <= 0 {
		container = source
	}
	return Layout{
		Container: container,
		Overlay:   Fit(container.X, container.Y, source.X, source.Y),
	}
}
