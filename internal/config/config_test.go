package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/voxnet/internal/network"
	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesNetworkDefaults(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())
	assert.Equal(t, network.DefaultConfig(), f.Network())

	ds := f.Dataset(nil)
	assert.Equal(t, [3]int{32, 32, 32}, ds.Grid)
	assert.Equal(t, "data", ds.Dir)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	f, err := Parse([]byte(`
data:
  dir: /tmp/voxels
  batch_size: 4
model:
  input: [16, 16, 16, 1]
  conv_padding: valid
  classes: 5
optim:
  lr: 0.05
train:
  epochs: 3
  resume: false
log:
  format: json
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/voxels", f.Data.Dir)
	assert.Equal(t, 4, f.Data.BatchSize)
	assert.InDelta(t, 0.2, f.Data.ValRatio, 1e-6, "unset keys keep defaults")

	cfg := f.Network()
	assert.Equal(t, tensor.NewShape(16, 16, 16, 1), cfg.Input)
	assert.Equal(t, nn.Valid, cfg.ConvPadding)
	assert.Equal(t, 5, cfg.Classes)
	assert.InDelta(t, 0.05, cfg.LR, 1e-7)
	assert.InDelta(t, 0.9, cfg.Momentum, 1e-7)

	assert.Equal(t, 3, f.Train.Epochs)
	assert.False(t, f.Train.Resume)
	assert.Equal(t, [3]int{16, 16, 16}, f.Dataset(nil).Grid)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), f)
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"unknown key":      "model:\n  kernel: 3\n",
		"bad padding":      "model:\n  conv_padding: reflect\n",
		"short input":      "model:\n  input: [32, 32, 32]\n",
		"zero classes":     "model:\n  classes: 0\n",
		"negative lr":      "optim:\n  lr: -1\n",
		"val ratio of one": "data:\n  val_ratio: 1\n",
		"zero epochs":      "train:\n  epochs: 0\n",
		"empty checkpoint": "train:\n  checkpoint: \"\"\n",
		"bad level":        "log:\n  level: loud\n",
		"bad format":       "log:\n  format: xml\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	f := Default()
	f.Model.ConvPadding = nn.Valid
	f.Train.History = ""

	data, err := f.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "conv_padding: valid")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("train:\n  epochs: 7\n"), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, f.Train.Epochs)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLog_Logger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Log{Level: "warn", Format: "json"}.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "epoch", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.InDelta(t, 2, rec["epoch"], 0)

	buf.Reset()
	logger, err = Log{Level: "info", Format: "text"}.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello k=v")

	_, err = Log{Level: "info", Format: "xml"}.Logger(&buf)
	require.ErrorIs(t, err, ErrInvalid)
}
