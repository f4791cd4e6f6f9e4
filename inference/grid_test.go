package inference

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name  string
		grid  Grid
		valid bool
	}{
		{"default", DefaultGrid(), true},
		{"3x3 with margin", Grid{Columns: 3, Rows: 3, Margin: 16}, true},
		{"zero columns", Grid{Columns: 0, Rows: 1}, false},
		{"four rows", Grid{Columns: 1, Rows: 4}, false},
		{"negative margin", Grid{Columns: 2, Rows: 2, Margin: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.grid.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGrid_TilesPartitionFrame(t *testing.T) {
	for cols := 1; cols <= 3; cols++ {
		for rows := 1; rows <= 3; rows++ {
			grid := Grid{Columns: cols, Rows: rows, Margin: 5}
			tiles := grid.Tiles(101, 67)
			require.Len(t, tiles, cols*rows)

			covered := make([]int, 101*67)
			for _, tile := range tiles {
				assert.True(t, tile.Core.In(tile.Padded), "core %v outside padded %v", tile.Core, tile.Padded)
				assert.True(t, tile.Padded.In(image.Rect(0, 0, 101, 67)))
				for y := tile.Core.Min.Y; y < tile.Core.Max.Y; y++ {
					for x := tile.Core.Min.X; x < tile.Core.Max.X; x++ {
						covered[y*101+x]++
					}
				}
			}
			for i, n := range covered {
				require.Equal(t, 1, n, "grid %s pixel %d", grid, i)
			}
		}
	}
}

func TestGrid_TilesMargin(t *testing.T) {
	tiles := Grid{Columns: 2, Rows: 1, Margin: 4}.Tiles(20, 10)
	require.Len(t, tiles, 2)
	assert.Equal(t, image.Rect(0, 0, 10, 10), tiles[0].Core)
	assert.Equal(t, image.Rect(0, 0, 14, 10), tiles[0].Padded)
	assert.Equal(t, image.Rect(10, 0, 20, 10), tiles[1].Core)
	assert.Equal(t, image.Rect(6, 0, 20, 10), tiles[1].Padded)
}

func TestGrid_TilesInvalid(t *testing.T) {
	assert.Nil(t, Grid{Columns: 4, Rows: 1}.Tiles(10, 10))
	assert.Nil(t, DefaultGrid().Tiles(0, 10))
}
