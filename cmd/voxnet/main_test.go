package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_VersionAndUsage(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "voxnet "+version+"\n", out)

	code, _, errOut := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Commands:")

	code, _, errOut = runCLI(t, "serve")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "serve"`)

	code, _, _ = runCLI(t, "train", "-no-such-flag")
	assert.Equal(t, 2, code)

	code, _, _ = runCLI(t, "train", "-h")
	assert.Equal(t, 0, code)
}

func TestRun_Info(t *testing.T) {
	code, out, _ := runCLI(t, "info")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Physical cores:")
	assert.Contains(t, out, "Default workers:")
}

// writeSamples creates n PLY samples on a 4³ grid, alternating two classes.
func writeSamples(t *testing.T, dir string, n int) {
	t.Helper()
	for i := range n {
		class := i % 2
		ply := fmt.Sprintf("ply\nformat ascii 1.0\nelement vertex 2\nend_header\n%d %d %d\n%d 0 0\n",
			3*class, 3*class, 3*class, class)
		stem := filepath.Join(dir, fmt.Sprintf("v%02d", i))
		require.NoError(t, os.WriteFile(stem+".ply", []byte(ply), 0o600))
		require.NoError(t, os.WriteFile(stem+"_cls.txt", []byte(fmt.Sprint(class)), 0o600))
	}
}

func TestRun_TrainInferExport(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data")
	require.NoError(t, os.Mkdir(data, 0o700))
	writeSamples(t, data, 4)

	ckpt := filepath.Join(dir, "ckpt.bin")
	cfgPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
data:
  dir: %s
  batch_size: 2
  val_ratio: 0.5
model:
  input: [4, 4, 4, 1]
  conv_channels: 2
  classes: 2
  workers: 1
train:
  epochs: 1
  checkpoint: %s
  history: %s
log:
  level: warn
`, data, ckpt, filepath.Join(dir, "history.db"))), 0o600))

	code, out, errOut := runCLI(t, "train", "-config", cfgPath, "-epochs", "2", "-lr", "0.05")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "epoch 2/2")
	assert.FileExists(t, ckpt)

	// Second run resumes and verifies the recorded checksum.
	code, _, errOut = runCLI(t, "train", "-config", cfgPath)
	require.Equal(t, 0, code, errOut)

	code, out, errOut = runCLI(t, "infer", "-config", cfgPath, filepath.Join(data, "v00.ply"), filepath.Join(data, "v01.ply"))
	require.Equal(t, 0, code, errOut)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], filepath.Join(data, "v00.ply")+"\t"))

	model := filepath.Join(dir, "model.onnx")
	code, out, errOut = runCLI(t, "export", "-config", cfgPath, "-out", model)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "8 nodes")

	code, out, errOut = runCLI(t, "info", model)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Transpose → Conv → BatchNormalization → Relu → MaxPool → Transpose → Flatten → Gemm")
	assert.Contains(t, out, "checkpoint_sha256:")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()

	code, _, errOut := runCLI(t, "train", "-data", filepath.Join(dir, "missing"), "-history", "",
		"-checkpoint", filepath.Join(dir, "c.bin"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "voxnet train:")

	code, _, _ = runCLI(t, "infer")
	assert.Equal(t, 2, code, "no input files")

	code, _, errOut = runCLI(t, "infer", "-checkpoint", filepath.Join(dir, "none.bin"), "x.ply")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "voxnet infer:")

	code, _, _ = runCLI(t, "train", "-epochs", "0", "-history", "")
	assert.Equal(t, 1, code, "invalid config")
}
