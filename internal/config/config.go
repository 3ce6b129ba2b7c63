// Package config loads voxnet run configuration from YAML.
//
// Load starts from Default and overlays the file, so a config file only needs
// the keys it changes. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/born-ml/voxnet/internal/dataset"
	"github.com/born-ml/voxnet/internal/network"
	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/tensor"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned for configs that fail validation.
var ErrInvalid = errors.New("config: invalid")

// File is the on-disk configuration.
type File struct {
	Data  Data  `yaml:"data"`
	Model Model `yaml:"model"`
	Optim Optim `yaml:"optim"`
	Train Train `yaml:"train"`
	Log   Log   `yaml:"log"`
}

// Data configures the dataset loader.
type Data struct {
	Dir       string  `yaml:"dir"`
	BatchSize int     `yaml:"batch_size"`
	ValRatio  float32 `yaml:"val_ratio"`
	Workers   int     `yaml:"workers"`
}

// Model configures the network topology.
type Model struct {
	Input             [4]int     `yaml:"input"` // D, H, W, C
	ConvChannels      int        `yaml:"conv_channels"`
	ConvKernel        [3]int     `yaml:"conv_kernel"`
	ConvStride        [3]int     `yaml:"conv_stride"`
	ConvPadding       nn.Padding `yaml:"conv_padding"`
	BatchNormEps      float32    `yaml:"batchnorm_eps"`
	BatchNormMomentum float32    `yaml:"batchnorm_momentum"`
	BatchNormRunning  bool       `yaml:"batchnorm_running_stats"`
	PoolWindow        [3]int     `yaml:"pool_window"`
	PoolStride        [3]int     `yaml:"pool_stride"`
	PoolPadding       nn.Padding `yaml:"pool_padding"`
	Classes           int        `yaml:"classes"`
	Seed              uint64     `yaml:"seed"`
	Workers           int        `yaml:"workers"`
}

// Optim configures SGD.
type Optim struct {
	LR       float32 `yaml:"lr"`
	Momentum float32 `yaml:"momentum"`
}

// Train configures the training driver.
type Train struct {
	Epochs     int    `yaml:"epochs"`
	Checkpoint string `yaml:"checkpoint"`
	Resume     bool   `yaml:"resume"`
	History    string `yaml:"history"` // empty disables run history
}

// Log configures slog output.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Default returns the reference configuration.
func Default() File {
	net := network.DefaultConfig()
	data := dataset.DefaultConfig("data")

	return File{
		Data: Data{
			Dir:       data.Dir,
			BatchSize: data.BatchSize,
			ValRatio:  data.ValRatio,
		},
		Model: Model{
			Input:             net.Input,
			ConvChannels:      net.ConvChannels,
			ConvKernel:        net.ConvKernel,
			ConvStride:        net.ConvStride,
			ConvPadding:       net.ConvPadding,
			BatchNormEps:      net.BatchNormEps,
			BatchNormMomentum: net.BatchNormMomentum,
			BatchNormRunning:  net.BatchNormUseRunningStats,
			PoolWindow:        net.PoolWindow,
			PoolStride:        net.PoolStride,
			PoolPadding:       net.PoolPadding,
			Classes:           net.Classes,
			Seed:              net.Seed,
			Workers:           net.Workers,
		},
		Optim: Optim{
			LR:       net.LR,
			Momentum: net.Momentum,
		},
		Train: Train{
			Epochs:     10,
			Checkpoint: "ckpt.bin",
			Resume:     true,
			History:    "history.db",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: config path is provided by the user.
	if err != nil {
		return File{}, fmt.Errorf("config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Marshal encodes f as YAML.
func (f File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}

// Validate checks every section.
func (f File) Validate() error {
	if err := f.Network().Validate(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalid, err)
	}
	if err := f.Dataset(nil).Validate(); err != nil {
		return fmt.Errorf("%w: data: %w", ErrInvalid, err)
	}
	if f.Data.Workers < 0 {
		return fmt.Errorf("%w: data: workers=%d must not be negative", ErrInvalid, f.Data.Workers)
	}
	if f.Train.Epochs <= 0 {
		return fmt.Errorf("%w: train: epochs=%d must be positive", ErrInvalid, f.Train.Epochs)
	}
	if f.Train.Checkpoint == "" {
		return fmt.Errorf("%w: train: checkpoint path is empty", ErrInvalid)
	}
	if _, err := parseLevel(f.Log.Level); err != nil {
		return err
	}
	if f.Log.Format != "text" && f.Log.Format != "json" {
		return fmt.Errorf("%w: log: format %q (want text or json)", ErrInvalid, f.Log.Format)
	}
	return nil
}

// Network converts the model and optim sections.
func (f File) Network() network.Config {
	m := f.Model
	return network.Config{
		Input: tensor.Shape(m.Input),

		ConvChannels: m.ConvChannels,
		ConvKernel:   m.ConvKernel,
		ConvStride:   m.ConvStride,
		ConvPadding:  m.ConvPadding,

		BatchNormEps:             m.BatchNormEps,
		BatchNormMomentum:        m.BatchNormMomentum,
		BatchNormUseRunningStats: m.BatchNormRunning,

		PoolWindow:  m.PoolWindow,
		PoolStride:  m.PoolStride,
		PoolPadding: m.PoolPadding,

		Classes: m.Classes,

		LR:       f.Optim.LR,
		Momentum: f.Optim.Momentum,

		Seed:    m.Seed,
		Workers: m.Workers,
	}
}

// Dataset converts the data section. The voxel grid is the model input's
// spatial extent.
func (f File) Dataset(logger *slog.Logger) dataset.Config {
	return dataset.Config{
		Dir:       f.Data.Dir,
		BatchSize: f.Data.BatchSize,
		ValRatio:  f.Data.ValRatio,
		Grid:      [3]int{f.Model.Input[0], f.Model.Input[1], f.Model.Input[2]},
		Workers:   f.Data.Workers,
		Logger:    logger,
	}
}

// Logger builds a slog.Logger writing to w as configured.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: log: format %q (want text or json)", ErrInvalid, l.Format)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("%w: log: level %q", ErrInvalid, s)
	}
	return level, nil
}
