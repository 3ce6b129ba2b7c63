// Package trainer drives epochs of mini-batch training over a dataset.
//
// Each step zeroes the gradients, runs forward, loss and backward for every
// example of the batch so the gradients sum over it, and then applies one
// optimizer update. After every epoch the network is evaluated on the
// validation split, checkpointed, and the metrics are logged and optionally
// recorded in a history store.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/born-ml/voxnet/internal/dataset"
	"github.com/born-ml/voxnet/internal/history"
	"github.com/born-ml/voxnet/internal/network"
	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/serialization"
	"github.com/google/uuid"
)

// ErrInvalidConfig is returned for invalid trainer settings.
var ErrInvalidConfig = errors.New("trainer: invalid config")

// Source supplies classification batches. *dataset.Loader implements it.
type Source interface {
	Reset()
	NextBatch(ctx context.Context, train bool) (dataset.Batch, error)
	Steps(train bool) int
	NumTrain() int
	NumVal() int
	BatchSize() int
}

// Config configures a Trainer.
type Config struct {
	Epochs     int
	Checkpoint string // written after every epoch
	Resume     bool   // load Checkpoint first when it exists
	ConfigYAML string // stored with the run in history
}

// EpochMetrics summarizes one epoch.
type EpochMetrics struct {
	Epoch         int
	TrainLoss     float64 // mean over TrainSamples
	TrainAccuracy float64 // percent
	TrainSamples  int
	ValLoss       float64
	ValAccuracy   float64
	ValSamples    int
	Duration      time.Duration
	Checksum      string // SHA-256 of the checkpoint saved after the epoch
}

// Trainer owns one training run.
type Trainer struct {
	cfg     Config
	net     *network.Network
	data    Source
	history *history.Store
	log     *slog.Logger

	runID   string
	resumed bool
}

// Option customizes a Trainer.
type Option func(*Trainer)

// WithHistory records the run in store.
func WithHistory(store *history.Store) Option {
	return func(t *Trainer) { t.history = store }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trainer) { t.log = logger }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(t *Trainer) { t.runID = id }
}

// New creates a trainer for net fed by data.
func New(cfg Config, net *network.Network, data Source, opts ...Option) (*Trainer, error) {
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("%w: epochs=%d must be positive", ErrInvalidConfig, cfg.Epochs)
	}
	if cfg.Checkpoint == "" {
		return nil, fmt.Errorf("%w: checkpoint path is empty", ErrInvalidConfig)
	}

	t := &Trainer{
		cfg:   cfg,
		net:   net,
		data:  data,
		log:   slog.New(slog.DiscardHandler),
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("run", t.runID)
	return t, nil
}

// RunID returns the run identifier.
func (t *Trainer) RunID() string { return t.runID }

// Resumed reports whether Run restored a checkpoint.
func (t *Trainer) Resumed() bool { return t.resumed }

// Run trains for Config.Epochs epochs and returns their metrics.
// Cancelling ctx stops training between steps; the metrics of completed
// epochs are returned with the error.
func (t *Trainer) Run(ctx context.Context) ([]EpochMetrics, error) {
	if t.cfg.Resume {
		if err := t.resume(ctx); err != nil {
			return nil, err
		}
	}

	if t.history != nil {
		err := t.history.StartRun(ctx, history.Run{
			ID:         t.runID,
			StartedAt:  time.Now(),
			Checkpoint: t.checkpointKey(),
			Resumed:    t.resumed,
			Config:     t.cfg.ConfigYAML,
		})
		if err != nil {
			return nil, err
		}
	}

	t.log.Info("training started",
		"epochs", t.cfg.Epochs,
		"train_samples", t.data.NumTrain(),
		"val_samples", t.data.NumVal(),
		"batch_size", t.data.BatchSize(),
		"steps_per_epoch", t.data.Steps(true),
		"parameters", t.net.NumParameters(),
		"resumed", t.resumed)

	metrics := make([]EpochMetrics, 0, t.cfg.Epochs)
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		m, err := t.runEpoch(ctx, epoch)
		if err != nil {
			return metrics, fmt.Errorf("trainer: epoch %d: %w", epoch, err)
		}
		metrics = append(metrics, m)
	}

	t.log.Info("training finished", "epochs", len(metrics))
	return metrics, nil
}

func (t *Trainer) runEpoch(ctx context.Context, epoch int) (EpochMetrics, error) {
	m := EpochMetrics{Epoch: epoch}
	start := time.Now()
	t.data.Reset()

	var trainLoss float64
	var trainCorrect int
	for step := range t.data.Steps(true) {
		if err := ctx.Err(); err != nil {
			return m, err
		}
		batch, err := t.data.NextBatch(ctx, true)
		if err != nil {
			return m, err
		}

		t.net.ZeroGrad()
		for i, x := range batch.Inputs {
			y := batch.Labels[i]
			logits, err := t.net.Forward(x, true)
			if err != nil {
				return m, fmt.Errorf("step %d: %w", step, err)
			}
			loss, err := t.net.ComputeLoss([]int{y})
			if err != nil {
				return m, fmt.Errorf("step %d: %w", step, err)
			}
			if err := t.net.Backward(); err != nil {
				return m, fmt.Errorf("step %d: %w", step, err)
			}

			trainLoss += float64(loss)
			m.TrainSamples++
			if nn.Argmax(logits) == y {
				trainCorrect++
			}
		}
		t.net.Optimize()

		t.log.Debug("step", "epoch", epoch, "step", step, "batch", len(batch.Inputs))
	}
	m.TrainLoss, m.TrainAccuracy = mean(trainLoss, trainCorrect, m.TrainSamples)

	if err := t.validate(ctx, &m); err != nil {
		return m, err
	}
	m.Duration = time.Since(start)

	if err := t.net.SaveCheckpoint(t.cfg.Checkpoint); err != nil {
		return m, err
	}
	sum, err := serialization.FileChecksum(t.cfg.Checkpoint)
	if err != nil {
		return m, err
	}
	m.Checksum = sum

	t.log.Info("epoch",
		"epoch", epoch,
		"train_loss", m.TrainLoss,
		"train_acc", m.TrainAccuracy,
		"val_loss", m.ValLoss,
		"val_acc", m.ValAccuracy,
		"duration", m.Duration,
		"checkpoint", t.cfg.Checkpoint)

	if t.history != nil {
		err := t.history.RecordEpoch(ctx, t.runID, history.Epoch{
			Epoch:        m.Epoch,
			TrainLoss:    m.TrainLoss,
			TrainAcc:     m.TrainAccuracy,
			TrainSamples: m.TrainSamples,
			ValLoss:      m.ValLoss,
			ValAcc:       m.ValAccuracy,
			ValSamples:   m.ValSamples,
			Duration:     m.Duration,
			Checkpoint:   t.checkpointKey(),
			Checksum:     m.Checksum,
		})
		if err != nil {
			return m, err
		}
	}
	return m, nil
}

// validate evaluates the validation split in inference mode.
func (t *Trainer) validate(ctx context.Context, m *EpochMetrics) error {
	if t.data.NumVal() == 0 {
		return nil
	}

	var valLoss float64
	var valCorrect int
	for range t.data.Steps(false) {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := t.data.NextBatch(ctx, false)
		if err != nil {
			return err
		}
		for i, x := range batch.Inputs {
			y := batch.Labels[i]
			logits, err := t.net.Forward(x, false)
			if err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			loss, err := t.net.ComputeLoss([]int{y})
			if err != nil {
				return fmt.Errorf("validation: %w", err)
			}
			valLoss += float64(loss)
			m.ValSamples++
			if nn.Argmax(logits) == y {
				valCorrect++
			}
		}
	}
	m.ValLoss, m.ValAccuracy = mean(valLoss, valCorrect, m.ValSamples)
	return nil
}

// resume restores the checkpoint when it exists. With a history store the
// file is first checked against the checksum recorded when it was written.
func (t *Trainer) resume(ctx context.Context) error {
	if _, err := os.Stat(t.cfg.Checkpoint); errors.Is(err, fs.ErrNotExist) {
		t.log.Info("no checkpoint, training from scratch", "checkpoint", t.cfg.Checkpoint)
		return nil
	}

	if t.history != nil {
		rec, err := t.history.LatestForCheckpoint(ctx, t.checkpointKey())
		switch {
		case errors.Is(err, history.ErrNotFound):
			t.log.Warn("checkpoint has no recorded checksum", "checkpoint", t.cfg.Checkpoint)
		case err != nil:
			return fmt.Errorf("trainer: resume: %w", err)
		default:
			if err := serialization.VerifyFileChecksum(t.cfg.Checkpoint, rec.Checksum); err != nil {
				return fmt.Errorf("trainer: resume: %w", err)
			}
		}
	}

	if err := t.net.LoadCheckpoint(t.cfg.Checkpoint); err != nil {
		return fmt.Errorf("trainer: resume: %w", err)
	}
	t.resumed = true
	t.log.Info("resumed from checkpoint", "checkpoint", t.cfg.Checkpoint)
	return nil
}

// checkpointKey is the checkpoint path as stored in history.
func (t *Trainer) checkpointKey() string {
	if abs, err := filepath.Abs(t.cfg.Checkpoint); err == nil {
		return abs
	}
	return t.cfg.Checkpoint
}

func mean(lossSum float64, correct, n int) (loss, accuracy float64) {
	if n == 0 {
		return 0, 0
	}
	return lossSum / float64(n), 100 * float64(correct) / float64(n)
}
