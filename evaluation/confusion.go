package evaluation

import (
	"fmt"
	"math"
)

// ConfusionCounts tallies pixel outcomes for one compared mask pair.
type ConfusionCounts struct {
	TruePositive  int `json:"truePositive" yaml:"truePositive"`
	FalsePositive int `json:"falsePositive" yaml:"falsePositive"`
	FalseNegative int `json:"falseNegative" yaml:"falseNegative"`
	TrueNegative  int `json:"trueNegative" yaml:"trueNegative"`
}

// Add records one outcome.
func (c *ConfusionCounts) Add(o Outcome) {
	switch o {
	case TruePositive:
		c.TruePositive++
	case FalsePositive:
		c.FalsePositive++
	case FalseNegative:
		c.FalseNegative++
	case TrueNegative:
		c.TrueNegative++
	}
}

// Total returns the number of classified pixels.
func (c ConfusionCounts) Total() int {
	return c.TruePositive + c.FalsePositive + c.FalseNegative + c.TrueNegative
}

// IoU returns TP/(TP+FP+FN), or NaN when the denominator is zero.
func (c ConfusionCounts) IoU() float64 {
	denominator := c.TruePositive + c.FalsePositive + c.FalseNegative
	if denominator == 0 {
		return math.NaN()
	}
	return float64(c.TruePositive) / float64(denominator)
}

func (c ConfusionCounts) String() string {
	return fmt.Sprintf("TP=%d FP=%d FN=%d TN=%d", c.TruePositive, c.FalsePositive, c.FalseNegative, c.TrueNegative)
}

// FormatIoU renders an IoU sample for display; NaN stays visible as "NaN".
func FormatIoU(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.4f", v)
}
