package images

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// AspectRatio represents a capture aspect ratio by name (e.g., "16:9").
type AspectRatio string

const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
)

// ResolutionType is the preset name a camera resolution is requested by.
type ResolutionType string

// Capture presets offered by the resolution selector.
const (
	ResolutionTypeQVGA   ResolutionType = "QVGA"
	ResolutionTypeVGA    ResolutionType = "VGA"
	ResolutionTypeHD     ResolutionType = "HD"
	ResolutionTypeFullHD ResolutionType = "FullHD"
	ResolutionType4K     ResolutionType = "4K"
)

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Resolution describes a capture preset.
type Resolution struct {
	Name        ResolutionType   `json:"name" yaml:"name"`
	AspectRatio AspectRatio      `json:"aspectRatio" yaml:"aspectRatio"`
	Pixels      ResolutionPixels `json:"pixels" yaml:"pixels"`
}

// GetMegaPixels calculates the megapixel value rounded to two decimal places.
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeQVGA: {
		Name:        ResolutionTypeQVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 320, Height: 240},
	},
	ResolutionTypeVGA: {
		Name:        ResolutionTypeVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 640, Height: 480},
	},
	ResolutionTypeHD: {
		Name:        ResolutionTypeHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1280, Height: 720},
	},
	ResolutionTypeFullHD: {
		Name:        ResolutionTypeFullHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1920, Height: 1080},
	},
	ResolutionType4K: {
		Name:        ResolutionType4K,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 3840, Height: 2160},
	},
}

// GetResolutionByType retrieves a preset by name, ignoring case.
//
// Arguments:
//   - t: The preset name.
//
// Returns:
//   - Resolution: The preset.
//   - bool: True if found.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	if res, ok := resolutions[t]; ok {
		return res, true
	}
	for name, res := range resolutions {
		if strings.EqualFold(string(name), string(t)) {
			return res, true
		}
	}
	return Resolution{}, false
}

// GetSupportedResolutions returns all presets ordered by pixel count.
func GetSupportedResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Pixels.Width*all[i].Pixels.Height < all[j].Pixels.Width*all[j].Pixels.Height
	})
	return all
}
