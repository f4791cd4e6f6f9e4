package images

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFit_Scenarios validates the fitted overlay against known container/source pairs.
func TestFit_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		cw, ch   int
		sw, sh   int
		expected OverlayRect
	}{
		{
			name:     "Equal aspect ratios fill the container",
			cw:       640, ch: 480, sw: 320, sh: 240,
			expected: OverlayRect{Width: 640, Height: 480, XOffset: 0, YOffset: 0},
		},
		{
			name:     "Wider source is letterboxed",
			cw:       640, ch: 480, sw: 320, sh: 180,
			expected: OverlayRect{Width: 640, Height: 360, XOffset: 0, YOffset: 60},
		},
		{
			name:     "Taller source is pillarboxed",
			cw:       1280, ch: 720, sw: 640, sh: 480,
			expected: OverlayRect{Width: 960, Height: 720, XOffset: 160, YOffset: 0},
		},
		{
			name:     "Floor leaves an unfilled pixel",
			cw:       100, ch: 100, sw: 3, sh: 2,
			// height = 100*2/3 = 66.67 -> 66, yOffset = (100-66.67)/2 = 16.67 -> 16
			expected: OverlayRect{Width: 100, Height: 66, XOffset: 0, YOffset: 16},
		},
		{
			name:     "Odd pillarbox offset floors",
			cw:       101, ch: 50, sw: 1, sh: 1,
			expected: OverlayRect{Width: 50, Height: 50, XOffset: 25, YOffset: 0},
		},
		{
			name:     "Degenerate source",
			cw:       640, ch: 480, sw: 0, sh: 480,
			expected: OverlayRect{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Fit(tt.cw, tt.ch, tt.sw, tt.sh))
		})
	}
}

// TestFit_Properties checks idempotence, containment and aspect preservation
// over random positive inputs.
func TestFit_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		cw, ch := 1+rng.Intn(4000), 1+rng.Intn(4000)
		sw, sh := 1+rng.Intn(4000), 1+rng.Intn(4000)

		first := Fit(cw, ch, sw, sh)
		second := Fit(cw, ch, sw, sh)
		assert.Equal(t, first, second, "Fit must be pure")

		assert.LessOrEqual(t, first.XOffset+first.Width, cw, "overlay exceeds container width")
		assert.LessOrEqual(t, first.YOffset+first.Height, ch, "overlay exceeds container height")
		assert.GreaterOrEqual(t, first.XOffset, 0)
		assert.GreaterOrEqual(t, first.YOffset, 0)

		if first.Width == 0 || first.Height == 0 {
			continue
		}
		// A one pixel floor on either side bounds the aspect error.
		got := float64(first.Width) / float64(first.Height)
		want := float64(sw) / float64(sh)
		eps := want/float64(first.Height) + 1/float64(first.Height) + 1/float64(first.Width)
		assert.LessOrEqual(t, math.Abs(got-want), eps, "aspect drift for %dx%d in %dx%d: %v", sw, sh, cw, ch, first)
	}
}

func TestFit_CenteredOnNonFittedAxis(t *testing.T) {
	r := Fit(1920, 1080, 640, 480)
	assert.Equal(t, 1080, r.Height)
	assert.Equal(t, 0, r.YOffset)
	// Left and right borders differ by at most one pixel.
	left := r.XOffset
	right := 1920 - r.XOffset - r.Width
	assert.LessOrEqual(t, math.Abs(float64(left-right)), 1.0)
}

func TestFitLayout_ZeroContainerUsesSource(t *testing.T) {
	l := FitLayout(image.Point{}, image.Pt(640, 480))
	assert.Equal(t, 640, l.Container.X)
	assert.Equal(t, 480, l.Container.Y)
	assert.Equal(t, OverlayRect{Width: 640, Height: 480}, l.Overlay)
}

func TestOverlayRect_Rectangle(t *testing.T) {
	ov := Fit(640, 480, 320, 180)
	assert.Equal(t, image.Rect(0, 60, 640, 420), ov.Rectangle())
	assert.True(t, ov.Rectangle().In(image.Rect(0, 0, 640, 480)))
}

func TestFit_EqualAspectStaysInside(t *testing.T) {
	// 7/29 == 14/58 exactly; floating point division disagrees in the last bit.
	assert.Equal(t, OverlayRect{Width: 7, Height: 29}, Fit(7, 29, 14, 58))
}
