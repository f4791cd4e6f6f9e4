// Package render - Composites camera frames with the predicted mask, the tile
// grid and the status lines into the display image.
package render

import (
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
	"github.com/nvr-ai/go-segscan/telemetry"
)

// Options configures a Renderer.
type Options struct {
	// MaskColor is the hex tint of foreground pixels, e.g. "#00ff88".
	MaskColor string
	// Opacity of the mask tint in [0,1].
	Opacity    float64
	ShowMask   bool
	ShowGrid   bool
	ShowStatus bool
	GridColor  string
	Grid       inference.Grid
	// Board supplies the status lines.
	Board *telemetry.Board
}

// DefaultOptions returns a green half-transparent mask with status text.
func DefaultOptions() Options {
	return Options{
		MaskColor:  "#00ff88",
		Opacity:    0.5,
		ShowMask:   true,
		ShowStatus: true,
		GridColor:  "#ff3030",
		Grid:       inference.DefaultGrid(),
	}
}

// Renderer draws the overlay. It implements the scheduler's Presenter.
type Renderer struct {
	mu        sync.RWMutex
	opts      Options
	tint      color.NRGBA
	gridColor color.NRGBA
	layout    images.Layout
	latest    *image.NRGBA
	frames    uint64
}

// New creates a renderer.
//
// Arguments:
//   - opts: The render options.
//
// Returns:
//   - *Renderer: The renderer.
//   - error: An error if a color cannot be parsed or the opacity is out of range.
func New(opts Options) (*Renderer, error) {
	if opts.Opacity < 0 || opts.Opacity > 1 {
		return nil, errors.Errorf("mask opacity must be in [0,1], got %v", opts.Opacity)
	}
	tint, err := parseColor(opts.MaskColor)
	if err != nil {
		return nil, errors.Wrap(err, "mask color")
	}
	gridColor := color.NRGBA{R: 255, A: 255}
	if opts.GridColor != "" {
		if gridColor, err = parseColor(opts.GridColor); err != nil {
			return nil, errors.Wrap(err, "grid color")
		}
	}
	return &Renderer{opts: opts, tint: tint, gridColor: gridColor}, nil
}

func parseColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// Resize sets the container and overlay placement.
func (r *Renderer) Resize(layout images.Layout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.layout = layout
}

// Present composites frame and mask into a new display image.
func (r *Renderer) Present(frame, mask images.Raster) {
	if frame.Empty() {
		return
	}

	r.mu.RLock()
	opts := r.opts
	layout := r.layout
	tint, gridColor := r.tint, r.gridColor
	r.mu.RUnlock()

	if layout.Overlay.Width <= 0 || layout.Overlay.Height <= 0 {
		layout = images.FitLayout(image.Point{}, frame.Size())
	}
	ov := layout.Overlay

	fitted := imaging.Resize(frame.Image(), ov.Width, ov.Height, imaging.Linear)
	if opts.ShowMask && !mask.Empty() {
		if tinted, err := tintMask(mask, ov.Width, ov.Height, tint); err == nil {
			fitted = imaging.Overlay(fitted, tinted, image.Pt(0, 0), opts.Opacity)
		}
	}
	if opts.ShowGrid {
		drawGrid(fitted, opts.Grid, gridColor)
	}

	canvas := imaging.New(layout.Container.X, layout.Container.Y, color.Black)
	canvas = imaging.Paste(canvas, fitted, ov.Rectangle().Min)
	if opts.ShowStatus && opts.Board != nil {
		drawStatus(canvas, opts.Board.Lines())
	}

	r.mu.Lock()
	r.latest = canvas
	r.frames++
	r.mu.Unlock()
}

// Latest returns the last composited image, or nil before the first Present.
func (r *Renderer) Latest() *image.NRGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Frames returns the number of composited images.
func (r *Renderer) Frames() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames
}

// SetGrid changes the grid drawn over the overlay.
func (r *Renderer) SetGrid(grid inference.Grid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.Grid = grid
}

// ToggleGrid flips grid drawing and returns the new state.
func (r *Renderer) ToggleGrid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.ShowGrid = !r.opts.ShowGrid
	return r.opts.ShowGrid
}

// ToggleMask flips mask drawing and returns the new state.
func (r *Renderer) ToggleMask() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.ShowMask = !r.opts.ShowMask
	return r.opts.ShowMask
}

// ToggleStatus flips status text drawing and returns the new state.
func (r *Renderer) ToggleStatus() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts.ShowStatus = !r.opts.ShowStatus
	return r.opts.ShowStatus
}

// tintMask scales mask to width x height and paints foreground pixels with
// tint; background stays transparent.
func tintMask(mask images.Raster, width, height int, tint color.NRGBA) (*image.NRGBA, error) {
	plane, err := mask.Plane(0)
	if err != nil {
		return nil, err
	}
	gray := images.Raster{Width: mask.Width, Height: mask.Height, Channels: images.ChannelsGray, Pix: plane}
	scaled, err := images.ResampleNearest(gray, width, height)
	if err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, v := range scaled.Pix {
		if v == 0 {
			continue
		}
		out.Pix[i*4+0] = tint.R
		out.Pix[i*4+1] = tint.G
		out.Pix[i*4+2] = tint.B
		out.Pix[i*4+3] = 255
	}
	return out, nil
}

// drawGrid draws the tile core boundaries of grid onto img.
func drawGrid(img *image.NRGBA, grid inference.Grid, c color.NRGBA) {
	b := img.Bounds()
	for _, tile := range grid.Tiles(b.Dx(), b.Dy()) {
		if x := tile.Core.Min.X; x > 0 {
			for y := tile.Core.Min.Y; y < tile.Core.Max.Y; y++ {
				img.SetNRGBA(x, y, c)
			}
		}
		if y := tile.Core.Min.Y; y > 0 {
			for x := tile.Core.Min.X; x < tile.Core.Max.X; x++ {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}

// drawStatus writes one status line per row in the top-left corner.
func drawStatus(img *image.NRGBA, lines []string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	lineHeight := face.Metrics().Height.Ceil()
	for i, line := range lines {
		d.Dot = fixed.P(4, 4+face.Ascent+i*lineHeight)
		d.DrawString(line)
	}
}
