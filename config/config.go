// Package config - YAML configuration of the segscan binary.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-segscan/images"
	"github.com/nvr-ai/go-segscan/inference"
)

// Config represents the complete segscan configuration.
type Config struct {
	Camera    CameraConfig    `yaml:"camera"`
	Model     ModelConfig     `yaml:"model"`
	Grid      inference.Grid  `yaml:"grid"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Display   DisplayConfig   `yaml:"display"`
	Scan      ScanConfig      `yaml:"scan"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// CameraConfig contains camera settings.
type CameraConfig struct {
	Device     string `yaml:"device"`     // camera index or file/stream URL
	Resolution string `yaml:"resolution"` // QVGA, VGA, HD, FullHD, 4K
}

// ModelConfig selects the segmentation model. Fields left zero fall back to
// the registered spec of ID.
type ModelConfig struct {
	ID              string      `yaml:"id"`
	Path            string      `yaml:"path"`
	SharedLibrary   string      `yaml:"shared_library"`
	IntraOpThreads  int         `yaml:"intra_op_threads"`
	InputName       string      `yaml:"input_name"`
	OutputName      string      `yaml:"output_name"`
	InputWidth      int         `yaml:"input_width"`
	InputHeight     int         `yaml:"input_height"`
	Layout          string      `yaml:"layout"` // logit, probability, classes
	Classes         int         `yaml:"classes"`
	ForegroundClass *int        `yaml:"foreground_class,omitempty"`
	Threshold       float32     `yaml:"threshold"`
	Mean            *[3]float32 `yaml:"mean,omitempty"`
	Std             *[3]float32 `yaml:"std,omitempty"`
}

// DatasetConfig points at the replay dataset.
type DatasetConfig struct {
	Images string `yaml:"images"` // directory of test images
	Masks  string `yaml:"masks"`  // directory of label masks, same order
}

// DisplayConfig contains overlay settings.
type DisplayConfig struct {
	Window     string  `yaml:"window"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	MaskColor  string  `yaml:"mask_color"`
	GridColor  string  `yaml:"grid_color"`
	Opacity    float64 `yaml:"opacity"`
	ShowMask   bool    `yaml:"show_mask"`
	ShowGrid   bool    `yaml:"show_grid"`
	ShowStatus bool    `yaml:"show_status"`
}

// ScanConfig tunes the scheduler.
type ScanConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"` // camera-not-ready retry cadence
	QueueSize    int           `yaml:"queue_size"`
}

// TelemetryConfig contains status publishing settings.
type TelemetryConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Camera: CameraConfig{Device: "0", Resolution: string(images.ResolutionTypeVGA)},
		Model: ModelConfig{
			ID:   "selfie-segmentation",
			Path: "./models/selfie_segmentation.onnx",
		},
		Grid: inference.DefaultGrid(),
		Display: DisplayConfig{
			Window:     "segscan",
			Width:      960,
			Height:     720,
			MaskColor:  "#00ff88",
			GridColor:  "#ff3030",
			Opacity:    0.5,
			ShowMask:   true,
			ShowStatus: true,
		},
		Scan: ScanConfig{TickInterval: 16 * time.Millisecond, QueueSize: 1},
		Telemetry: TelemetryConfig{MQTT: MQTTConfig{
			ClientID: "segscan",
			Topic:    "segscan/status",
		}},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
//
// Arguments:
//   - path: The configuration file.
//
// Returns:
//   - *Config: The configuration.
//   - error: An error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.Camera.Resolution != "" {
		if _, ok := images.GetResolutionByType(images.ResolutionType(c.Camera.Resolution)); !ok {
			return errors.Errorf("unknown camera resolution %q", c.Camera.Resolution)
		}
	}
	if _, err := c.ModelSpec(); err != nil {
		return err
	}
	if (c.Dataset.Images == "") != (c.Dataset.Masks == "") {
		return errors.New("dataset needs both images and masks directories")
	}
	if c.Display.Width < 0 || c.Display.Height < 0 {
		return errors.Errorf("invalid display size %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.Display.Opacity < 0 || c.Display.Opacity > 1 {
		return errors.Errorf("display opacity must be in [0,1], got %v", c.Display.Opacity)
	}
	if c.Scan.TickInterval <= 0 {
		return errors.Errorf("scan tick interval must be positive, got %s", c.Scan.TickInterval)
	}
	if c.Telemetry.MQTT.Enabled {
		if c.Telemetry.MQTT.Broker == "" || c.Telemetry.MQTT.Topic == "" {
			return errors.New("mqtt telemetry needs broker and topic")
		}
		if c.Telemetry.MQTT.QoS > 2 {
			return errors.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.Telemetry.MQTT.QoS)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// HasDataset reports whether a replay dataset is configured.
func (c *Config) HasDataset() bool {
	return c.Dataset.Images != "" && c.Dataset.Masks != ""
}

// Resolution returns the configured capture preset; the zero value keeps the
// device default.
func (c *Config) Resolution() images.Resolution {
	res, _ := images.GetResolutionByType(images.ResolutionType(c.Camera.Resolution))
	return res
}

// ModelSpec resolves the model section against the registry.
//
// Returns:
//   - inference.ModelSpec: The registered spec with every non-zero field of the
//     section applied on top.
//   - error: An error if the id is unknown and the section is incomplete.
func (c *Config) ModelSpec() (inference.ModelSpec, error) {
	m := c.Model
	if m.ID == "" {
		return inference.ModelSpec{}, errors.New("model id is required")
	}

	spec, _ := inference.LookupModel(m.ID)
	spec.ID = m.ID
	if m.InputName != "" {
		spec.InputName = m.InputName
	}
	if m.OutputName != "" {
		spec.OutputName = m.OutputName
	}
	if m.InputWidth > 0 {
		spec.InputWidth = m.InputWidth
	}
	if m.InputHeight > 0 {
		spec.InputHeight = m.InputHeight
	}
	if m.Layout != "" {
		layout, err := inference.ParseOutputLayout(m.Layout)
		if err != nil {
			return inference.ModelSpec{}, err
		}
		spec.Layout = layout
	}
	if m.Classes > 0 {
		spec.Classes = m.Classes
	}
	if m.ForegroundClass != nil {
		spec.ForegroundClass = *m.ForegroundClass
	}
	if m.Threshold > 0 {
		spec.Threshold = m.Threshold
	}
	if m.Mean != nil {
		spec.Normalization.Mean = *m.Mean
	}
	if m.Std != nil {
		spec.Normalization.Std = *m.Std
	}
	if spec.Normalization == (inference.Normalization{}) {
		spec.Normalization = inference.Identity
	}

	if err := spec.Validate(); err != nil {
		return inference.ModelSpec{}, err
	}
	return spec, nil
}
