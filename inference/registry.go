package inference

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ModelSpec describes the tensor contract of a segmentation model.
type ModelSpec struct {
	// ID is the opaque model identifier used in configuration.
	ID          string       `json:"id" yaml:"id"`
	InputName   string       `json:"inputName" yaml:"inputName"`
	OutputName  string       `json:"outputName" yaml:"outputName"`
	InputWidth  int          `json:"inputWidth" yaml:"inputWidth"`
	InputHeight int          `json:"inputHeight" yaml:"inputHeight"`
	Layout      OutputLayout `json:"layout" yaml:"layout"`
	Classes     int          `json:"classes" yaml:"classes"`

	// ForegroundClass is the class index segmented as foreground (LayoutClasses).
	ForegroundClass int           `json:"foregroundClass" yaml:"foregroundClass"`
	Threshold       float32       `json:"threshold" yaml:"threshold"`
	Normalization   Normalization `json:"normalization" yaml:"normalization"`
}

// Validate checks that the spec describes a usable model.
func (m ModelSpec) Validate() error {
	if m.InputName == "" || m.OutputName == "" {
		return errors.Errorf("model %q: input and output names are required", m.ID)
	}
	if m.InputWidth <= 0 || m.InputHeight <= 0 {
		return errors.Errorf("model %q: invalid input size %dx%d", m.ID, m.InputWidth, m.InputHeight)
	}
	switch m.Layout {
	case LayoutLogit, LayoutProbability:
	case LayoutClasses:
		if m.Classes < 1 || m.ForegroundClass < 0 || m.ForegroundClass >= m.Classes {
			return errors.Errorf("model %q: foreground class %d invalid for %d classes", m.ID, m.ForegroundClass, m.Classes)
		}
	default:
		return errors.Errorf("model %q: unknown output layout %q", m.ID, m.Layout)
	}
	return nil
}

// Decoder returns the output decoder for the model.
func (m ModelSpec) Decoder() OutputDecoder {
	classes := m.Classes
	if m.Layout != LayoutClasses {
		classes = 1
	}
	return OutputDecoder{
		Layout:          m.Layout,
		Width:           m.InputWidth,
		Height:          m.InputHeight,
		Classes:         classes,
		ForegroundClass: m.ForegroundClass,
		Threshold:       m.Threshold,
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]ModelSpec{
		"selfie-segmentation": {
			ID:            "selfie-segmentation",
			InputName:     "input",
			OutputName:    "output",
			InputWidth:    256,
			InputHeight:   256,
			Layout:        LayoutProbability,
			Classes:       1,
			Threshold:     0.5,
			Normalization: Identity,
		},
		"u2netp": {
			ID:            "u2netp",
			InputName:     "input.1",
			OutputName:    "1959",
			InputWidth:    320,
			InputHeight:   320,
			Layout:        LayoutProbability,
			Classes:       1,
			Threshold:     0.5,
			Normalization: ImageNet,
		},
		"deeplabv3-mobilenet": {
			ID:              "deeplabv3-mobilenet",
			InputName:       "input",
			OutputName:      "out",
			InputWidth:      520,
			InputHeight:     520,
			Layout:          LayoutClasses,
			Classes:         21,
			ForegroundClass: 15,
			Normalization:   ImageNet,
		},
	}
)

// LookupModel returns the registered spec for id, ignoring case.
//
// Arguments:
//   - id: The model identifier.
//
// Returns:
//   - ModelSpec: The spec.
//   - bool: True if found.
func LookupModel(id string) (ModelSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if m, ok := registry[id]; ok {
		return m, true
	}
	for key, m := range registry {
		if strings.EqualFold(key, id) {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// RegisterModel adds or replaces a model spec.
func RegisterModel(m ModelSpec) error {
	if m.ID == "" {
		return errors.New("model id is required")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[m.ID] = m
	return nil
}

// ModelIDs returns the registered identifiers in sorted order.
func ModelIDs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
