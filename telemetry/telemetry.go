// Package telemetry - Status lines for the overlay (frame rate, run condition,
// per-sample and mean IoU) and the sinks that publish them.
package telemetry

import (
	"fmt"
	"sync"
)

// Category names one status line. Each report overwrites the previous text of
// its category.
type Category string

const (
	CategoryFrameRate    Category = "frame-rate"
	CategoryRunCondition Category = "run-condition"
	CategorySampleIoU    Category = "sample-iou"
	CategoryMeanIoU      Category = "mean-iou"
)

// Categories returns every category in display order.
func Categories() []Category {
	return []Category{CategoryFrameRate, CategoryRunCondition, CategorySampleIoU, CategoryMeanIoU}
}

// Label is the human-readable prefix of a category.
func (c Category) Label() string {
	switch c {
	case CategoryFrameRate:
		return "FPS"
	case CategoryRunCondition:
		return "Condition"
	case CategorySampleIoU:
		return "IoU"
	case CategoryMeanIoU:
		return "Mean IoU"
	}
	return string(c)
}

// Sink receives status reports.
type Sink interface {
	Report(category Category, text string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(category Category, text string)

func (f SinkFunc) Report(category Category, text string) { f(category, text) }

// Fanout reports to every sink in order.
type Fanout []Sink

func (f Fanout) Report(category Category, text string) {
	for _, s := range f {
		if s != nil {
			s.Report(category, text)
		}
	}
}

// Discard drops every report.
var Discard Sink = SinkFunc(func(Category, string) {})

// Board keeps the latest text of every category.
type Board struct {
	mu    sync.RWMutex
	lines map[Category]string
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{lines: make(map[Category]string)}
}

func (b *Board) Report(category Category, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[category] = text
}

// Get returns the current text of a category.
func (b *Board) Get(category Category) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.lines[category]
	return text, ok
}

// Lines renders the reported categories as "Label: text" in display order.
func (b *Board) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []string
	for _, c := range Categories() {
		if text, ok := b.lines[c]; ok {
			out = append(out, fmt.Sprintf("%s: %s", c.Label(), text))
		}
	}
	return out
}
