package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var smallGrid = [3]int{2, 2, 2}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func plyText(points ...[3]float32) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ply\nformat ascii 1.0\nelement vertex %d\nproperty float x\nproperty float y\nproperty float z\nend_header\n", len(points))
	for _, p := range points {
		fmt.Fprintf(&sb, "%g %g %g\n", p[0], p[1], p[2])
	}
	return sb.String()
}

// writeSamples creates n samples; sample i marks voxel (i%2, 0, 0) and has class i.
func writeSamples(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := range n {
		stem := filepath.Join(dir, fmt.Sprintf("s%02d", i))
		writeFile(t, stem+".ply", plyText([3]float32{float32(i % 2), 0, 0}))
		writeFile(t, stem+"_cls.txt", fmt.Sprintf("%d\n", i))
		writeFile(t, stem+"_seg.txt", strings.Repeat(fmt.Sprintf("%d ", i), 8))
	}
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	return dir
}

func openLoader(t *testing.T, dir string, batch int, val float32) *Loader {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.BatchSize = batch
	cfg.ValRatio = val
	cfg.Grid = smallGrid
	cfg.Workers = 2
	l, err := Open(cfg)
	require.NoError(t, err)
	return l
}

func TestReadVoxelMask(t *testing.T) {
	ply := "ply\nformat ascii 1.0\nelement vertex 5\nproperty float x\nend_header\n" +
		"0 0 0\n" +
		"1.9 0.2 1 255 0 0\n" + // extra columns ignored, coordinates truncated
		"-0.5 1 1\n" + // truncates toward zero
		"2 0 0\n" + // outside
		"-1 0 0" // outside, no trailing newline

	mask, err := ReadVoxelMask(strings.NewReader(ply), smallGrid)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewShape(2, 2, 2, 1), mask.Shape())

	assert.Equal(t, float32(1), mask.At(0, 0, 0, 0))
	assert.Equal(t, float32(1), mask.At(1, 0, 1, 0))
	assert.Equal(t, float32(1), mask.At(0, 1, 1, 0))

	var sum float32
	for _, v := range mask.Data() {
		sum += v
	}
	assert.Equal(t, float32(3), sum)
}

func TestReadVoxelMask_Errors(t *testing.T) {
	tests := map[string]string{
		"missing end_header": "ply\nelement vertex 1\n0 0 0\n",
		"binary format":      "ply\nformat binary_little_endian 1.0\nend_header\n",
		"short vertex list":  "ply\nelement vertex 2\nend_header\n0 0 0\n",
		"too few columns":    "ply\nelement vertex 1\nend_header\n0 0\n",
		"not a number":       "ply\nelement vertex 1\nend_header\n0 x 0\n",
		"bad vertex count":   "ply\nelement vertex -3\nend_header\n",
	}
	for name, ply := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadVoxelMask(strings.NewReader(ply), smallGrid)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLabels(t *testing.T) {
	dir := t.TempDir()

	cls := filepath.Join(dir, "a_cls.txt")
	writeFile(t, cls, "7 3\n")
	label, err := LoadClassLabel(cls)
	require.NoError(t, err)
	assert.Equal(t, 7, label)

	empty := filepath.Join(dir, "b_cls.txt")
	writeFile(t, empty, "  \n")
	_, err = LoadClassLabel(empty)
	require.ErrorIs(t, err, ErrEmptyLabels)

	bad := filepath.Join(dir, "c_cls.txt")
	writeFile(t, bad, "one")
	_, err = LoadClassLabel(bad)
	require.ErrorIs(t, err, ErrMalformed)

	seg := filepath.Join(dir, "a_seg.txt")
	writeFile(t, seg, "0 1 2 3\n4 5 6 7 99")
	mask, err := LoadSegMask(seg, smallGrid)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5, 6, 7}, mask.Data())
	assert.Equal(t, float32(5), mask.At(1, 0, 1, 0))

	short := filepath.Join(dir, "b_seg.txt")
	writeFile(t, short, "1 2 3")
	_, err = LoadSegMask(short, smallGrid)
	require.ErrorIs(t, err, ErrMalformed)

	_, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOpen_SplitAndCounts(t *testing.T) {
	l := openLoader(t, writeSamples(t, 5), 2, 0.2)

	assert.Equal(t, 4, l.NumTrain())
	assert.Equal(t, 1, l.NumVal())
	assert.Equal(t, 2, l.BatchSize())
	assert.Equal(t, 2, l.Steps(true))
	assert.Equal(t, 1, l.Steps(false))

	samples := l.Samples()
	require.Len(t, samples, 5)
	assert.Equal(t, "s00.ply", filepath.Base(samples[0].Voxels))
	assert.Equal(t, "s04_cls.txt", filepath.Base(samples[4].Class))
}

func TestNextBatch_WrapsInsideSplit(t *testing.T) {
	ctx := context.Background()
	l := openLoader(t, writeSamples(t, 5), 3, 0.2)

	b, err := l.NextBatch(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, b.Labels)
	assert.Equal(t, float32(1), b.Inputs[1].At(1, 0, 0, 0))

	b, err = l.NextBatch(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0, 1}, b.Labels, "train cursor wraps to the start of the train split")

	b, err = l.NextBatch(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4, 4}, b.Labels, "val cursor stays inside the val split")

	l.Reset()
	b, err = l.NextBatch(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, b.Labels)
}

func TestNextSegBatch(t *testing.T) {
	l := openLoader(t, writeSamples(t, 4), 2, 0.5)

	b, err := l.NextSegBatch(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, b.Masks, 2)
	assert.Equal(t, float32(2), b.Masks[0].At(1, 1, 1, 0))
	assert.Equal(t, float32(3), b.Masks[1].At(0, 0, 0, 0))
	assert.Equal(t, float32(1), b.Inputs[1].At(1, 0, 0, 0))
}

func TestNextBatch_Errors(t *testing.T) {
	ctx := context.Background()

	l := openLoader(t, writeSamples(t, 2), 1, 0)
	_, err := l.NextBatch(ctx, false)
	require.ErrorIs(t, err, ErrEmptySplit)

	dir := writeSamples(t, 2)
	writeFile(t, filepath.Join(dir, "s01_cls.txt"), "")
	l = openLoader(t, dir, 2, 0)
	_, err = l.NextBatch(ctx, true)
	require.ErrorIs(t, err, ErrEmptyLabels)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	l = openLoader(t, writeSamples(t, 2), 2, 0)
	_, err = l.NextBatch(canceled, true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(DefaultConfig(t.TempDir()))
	require.ErrorIs(t, err, ErrNoSamples)

	_, err = Open(DefaultConfig(filepath.Join(t.TempDir(), "missing")))
	require.ErrorIs(t, err, os.ErrNotExist)

	cfg := DefaultConfig(t.TempDir())
	cfg.BatchSize = 0
	_, err = Open(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig(t.TempDir())
	cfg.ValRatio = 1
	_, err = Open(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
