package evaluation

import (
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Report summarises a finished AutoTest run.
type Report struct {
	RunID         string    `json:"runId" yaml:"runId"`
	Model         string    `json:"model" yaml:"model"`
	Started       time.Time `json:"started" yaml:"started"`
	Finished      time.Time `json:"finished" yaml:"finished"`
	DatasetLength int       `json:"datasetLength" yaml:"datasetLength"`
	MeanIoU       float64   `json:"meanIoU" yaml:"meanIoU"`
	Samples       []Record  `json:"samples" yaml:"samples"`
}

// NewReport snapshots an accumulator into a report with a fresh run id.
func NewReport(model string, started, finished time.Time, datasetLength int, acc *Accumulator) Report {
	return Report{
		RunID:         uuid.NewString(),
		Model:         model,
		Started:       started,
		Finished:      finished,
		DatasetLength: datasetLength,
		MeanIoU:       acc.Mean(),
		Samples:       acc.Records(),
	}
}

// WriteYAML writes the report to path. NaN samples are encoded as .nan.
func (r Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}

// ReadReport loads a report written by WriteYAML.
func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, errors.Wrapf(err, "read report %s", path)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, errors.Wrap(err, "parse report")
	}
	return r, nil
}
