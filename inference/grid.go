package inference

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

// Grid split limits.
const (
	MinGridCells = 1
	MaxGridCells = 3
)

// Grid describes how a frame is split into tiles before prediction. Each tile
// is padded by Margin pixels on every side so that the model sees context
// across tile borders; only the unpadded core of each tile is kept.
type Grid struct {
	Columns int `json:"columns" yaml:"columns"`
	Rows    int `json:"rows" yaml:"rows"`
	Margin  int `json:"margin" yaml:"margin"`
}

// DefaultGrid is a single tile without margin.
func DefaultGrid() Grid {
	return Grid{Columns: 1, Rows: 1}
}

// Validate checks the grid against the supported split range.
func (g Grid) Validate() error {
	if g.Columns < MinGridCells || g.Columns > MaxGridCells {
		return errors.Errorf("grid columns must be in [%d,%d], got %d", MinGridCells, MaxGridCells, g.Columns)
	}
	if g.Rows < MinGridCells || g.Rows > MaxGridCells {
		return errors.Errorf("grid rows must be in [%d,%d], got %d", MinGridCells, MaxGridCells, g.Rows)
	}
	if g.Margin < 0 {
		return errors.Errorf("grid margin must be >= 0, got %d", g.Margin)
	}
	return nil
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d+%d", g.Columns, g.Rows, g.Margin)
}

// Tile is one cell of a split frame.
type Tile struct {
	// Core is the region of the frame this tile is responsible for.
	Core image.Rectangle
	// Padded is Core grown by the grid margin and clipped to the frame.
	Padded image.Rectangle
}

// Tiles splits a width x height frame into Columns x Rows tiles in row-major
// order. Cores partition the frame exactly; boundaries are floored.
//
// Arguments:
//   - width: The frame width.
//   - height: The frame height.
//
// Returns:
//   - []Tile: The tiles, or nil for an invalid grid or empty frame.
func (g Grid) Tiles(width, height int) []Tile {
	if g.Validate() != nil || width <= 0 || height <= 0 {
		return nil
	}

	bounds := image.Rect(0, 0, width, height)
	tiles := make([]Tile, 0, g.Columns*g.Rows)
	for r := 0; r < g.Rows; r++ {
		y0, y1 := r*height/g.Rows, (r+1)*height/g.Rows
		for c := 0; c < g.Columns; c++ {
			x0, x1 := c*width/g.Columns, (c+1)*width/g.Columns
			core := image.Rect(x0, y0, x1, y1)
			if core.Empty() {
				continue
			}
			padded := image.Rect(x0-g.Margin, y0-g.Margin, x1+g.Margin, y1+g.Margin).Intersect(bounds)
			tiles = append(tiles, Tile{Core: core, Padded: padded})
		}
	}
	return tiles
}
