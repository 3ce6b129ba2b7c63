package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
)

// DefaultValRatio is the fraction of samples held out for validation.
const DefaultValRatio = 0.2

// Config configures a Loader.
type Config struct {
	Dir       string
	BatchSize int
	ValRatio  float32 // in [0, 1)
	Grid      [3]int  // voxel grid D×H×W
	Workers   int     // concurrent file reads per batch; 0 means one per core
	Logger    *slog.Logger
}

// DefaultConfig returns a loader config for dir with a 32³ grid.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:       dir,
		BatchSize: 8,
		ValRatio:  DefaultValRatio,
		Grid:      [3]int{32, 32, 32},
	}
}

// Validate checks the loader settings.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.ValRatio < 0 || c.ValRatio >= 1 {
		return fmt.Errorf("%w: validation ratio %g not in [0, 1)", ErrInvalidConfig, c.ValRatio)
	}
	for _, g := range c.Grid {
		if g <= 0 {
			return fmt.Errorf("%w: grid %v", ErrInvalidConfig, c.Grid)
		}
	}
	return nil
}

// Sample names the files of one example.
type Sample struct {
	Voxels string // .ply
	Class  string // _cls.txt
	Seg    string // _seg.txt
}

// Batch is a classification batch in sample order.
type Batch struct {
	Inputs []tensor.Tensor
	Labels []int
}

// SegBatch is a segmentation batch in sample order.
type SegBatch struct {
	Inputs []tensor.Tensor
	Masks  []tensor.Tensor
}

// Loader serves batches from a sample directory.
//
// A Loader is not safe for concurrent use; each batch is read concurrently
// internally.
type Loader struct {
	cfg     Config
	samples []Sample
	split   int
	log     *slog.Logger

	trainPos int
	valPos   int
}

// Open scans cfg.Dir for samples.
func Open(cfg Config) (*Loader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	samples, err := Scan(cfg.Dir)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Loader{
		cfg:     cfg,
		samples: samples,
		split:   int(float32(len(samples)) * (1 - cfg.ValRatio)),
		log:     logger,
	}
	l.Reset()

	l.log.Debug("dataset opened",
		"dir", cfg.Dir,
		"samples", len(samples),
		"train", l.NumTrain(),
		"val", l.NumVal(),
		"batch_size", cfg.BatchSize)
	return l, nil
}

// Scan lists the samples of dir sorted by file name.
func Scan(dir string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("dataset: scan: %w", err)
	}

	var samples []Sample
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".ply") || len(name) == len(".ply") {
			continue
		}
		stem := filepath.Join(dir, strings.TrimSuffix(name, ".ply"))
		samples = append(samples, Sample{
			Voxels: stem + ".ply",
			Class:  stem + "_cls.txt",
			Seg:    stem + "_seg.txt",
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Voxels < samples[j].Voxels })
	return samples, nil
}

// NumTrain returns the number of training samples.
func (l *Loader) NumTrain() int { return l.split }

// NumVal returns the number of validation samples.
func (l *Loader) NumVal() int { return len(l.samples) - l.split }

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.cfg.BatchSize }

// Steps returns the number of batches that cover a split once.
func (l *Loader) Steps(train bool) int {
	n := l.NumVal()
	if train {
		n = l.NumTrain()
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Samples returns the samples in split order.
func (l *Loader) Samples() []Sample {
	return append([]Sample(nil), l.samples...)
}

// Reset rewinds both cursors to the start of their split.
func (l *Loader) Reset() {
	l.trainPos = 0
	l.valPos = l.split
}

// NextBatch returns the next BatchSize examples of a split with their class
// labels. The cursor wraps to the start of the split.
func (l *Loader) NextBatch(ctx context.Context, train bool) (Batch, error) {
	picked, err := l.advance(train)
	if err != nil {
		return Batch{}, err
	}

	b := Batch{
		Inputs: make([]tensor.Tensor, len(picked)),
		Labels: make([]int, len(picked)),
	}
	err = parallel.ForEach(ctx, len(picked), l.cfg.Workers, func(_ context.Context, i int) error {
		s := picked[i]
		x, err := LoadVoxelMask(s.Voxels, l.cfg.Grid)
		if err != nil {
			return err
		}
		y, err := LoadClassLabel(s.Class)
		if err != nil {
			return err
		}
		b.Inputs[i], b.Labels[i] = x, y
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	return b, nil
}

// NextSegBatch is NextBatch with per-voxel segmentation labels.
func (l *Loader) NextSegBatch(ctx context.Context, train bool) (SegBatch, error) {
	picked, err := l.advance(train)
	if err != nil {
		return SegBatch{}, err
	}

	b := SegBatch{
		Inputs: make([]tensor.Tensor, len(picked)),
		Masks:  make([]tensor.Tensor, len(picked)),
	}
	err = parallel.ForEach(ctx, len(picked), l.cfg.Workers, func(_ context.Context, i int) error {
		s := picked[i]
		x, err := LoadVoxelMask(s.Voxels, l.cfg.Grid)
		if err != nil {
			return err
		}
		m, err := LoadSegMask(s.Seg, l.cfg.Grid)
		if err != nil {
			return err
		}
		b.Inputs[i], b.Masks[i] = x, m
		return nil
	})
	if err != nil {
		return SegBatch{}, err
	}
	return b, nil
}

// advance picks the next BatchSize samples of a split and moves its cursor.
func (l *Loader) advance(train bool) ([]Sample, error) {
	start, end, pos := 0, l.split, &l.trainPos
	name := "train"
	if !train {
		start, end, pos = l.split, len(l.samples), &l.valPos
		name = "val"
	}
	if start == end {
		return nil, fmt.Errorf("%w: %s", ErrEmptySplit, name)
	}

	picked := make([]Sample, l.cfg.BatchSize)
	for i := range picked {
		if *pos >= end {
			*pos = start
		}
		picked[i] = l.samples[*pos]
		*pos++
	}
	return picked, nil
}
