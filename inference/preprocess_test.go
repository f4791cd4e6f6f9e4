package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareInput_PlanarNormalized(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})

	dst := make([]float32, 6)
	require.NoError(t, PrepareInput(img, dst, 2, 1, Identity))
	assert.InDeltaSlice(t, []float32{1, 0, 0, 1, 0.2, 0}, dst, 1e-6)

	norm := Normalization{Mean: [3]float32{0.5, 0.5, 0.5}, Std: [3]float32{0.5, 0.5, 0.5}}
	require.NoError(t, PrepareInput(img, dst, 2, 1, norm))
	assert.InDelta(t, 1.0, dst[0], 1e-6)
	assert.InDelta(t, -1.0, dst[1], 1e-6)
}

func TestPrepareInput_Resizes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	dst := make([]float32, 3*4*4)
	require.NoError(t, PrepareInput(img, dst, 4, 4, Identity))
	for i := 0; i < 16; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-2)
		assert.InDelta(t, 0.0, dst[16+i], 1e-2)
	}
}

func TestPrepareInput_Errors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	assert.Error(t, PrepareInput(img, make([]float32, 3), 2, 2, Identity))
	assert.Error(t, PrepareInput(img, make([]float32, 12), 2, 2, Normalization{}))
}
