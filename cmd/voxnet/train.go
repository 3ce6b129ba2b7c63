package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/born-ml/voxnet/internal/config"
	"github.com/born-ml/voxnet/internal/dataset"
	"github.com/born-ml/voxnet/internal/history"
	"github.com/born-ml/voxnet/internal/network"
	"github.com/born-ml/voxnet/internal/trainer"
)

type trainFlags struct {
	commonFlags
	data     string
	epochs   int
	batch    int
	val      float64
	history  string
	lr       float64
	momentum float64
	seed     uint64
	resume   bool
}

func trainCmd(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("train", stderr)
	var f trainFlags
	f.register(fs)
	fs.StringVar(&f.data, "data", "", "sample directory")
	fs.IntVar(&f.epochs, "epochs", 0, "number of epochs")
	fs.IntVar(&f.batch, "batch", 0, "batch size")
	fs.Float64Var(&f.val, "val", 0, "validation ratio in [0, 1)")
	fs.StringVar(&f.history, "history", "", "run history database, empty to disable")
	fs.Float64Var(&f.lr, "lr", 0, "SGD learning rate")
	fs.Float64Var(&f.momentum, "momentum", 0, "SGD momentum")
	fs.Uint64Var(&f.seed, "seed", 0, "weight initialization seed")
	fs.BoolVar(&f.resume, "resume", true, "resume from the checkpoint if it exists")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := f.load(fs)
	if err != nil {
		return err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "data":
			cfg.Data.Dir = f.data
		case "epochs":
			cfg.Train.Epochs = f.epochs
		case "batch":
			cfg.Data.BatchSize = f.batch
		case "val":
			cfg.Data.ValRatio = float32(f.val)
		case "history":
			cfg.Train.History = f.history
		case "lr":
			cfg.Optim.LR = float32(f.lr)
		case "momentum":
			cfg.Optim.Momentum = float32(f.momentum)
		case "seed":
			cfg.Model.Seed = f.seed
		case "resume":
			cfg.Train.Resume = f.resume
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.Logger(stderr)
	if err != nil {
		return err
	}

	loader, err := dataset.Open(cfg.Dataset(logger))
	if err != nil {
		return err
	}
	net, err := network.New(cfg.Network())
	if err != nil {
		return err
	}

	snapshot, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("snapshot config: %w", err)
	}

	opts := []trainer.Option{trainer.WithLogger(logger)}
	if cfg.Train.History != "" {
		store, err := history.Open(ctx, cfg.Train.History)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, trainer.WithHistory(store))
	}

	tr, err := trainer.New(trainer.Config{
		Epochs:     cfg.Train.Epochs,
		Checkpoint: cfg.Train.Checkpoint,
		Resume:     cfg.Train.Resume,
		ConfigYAML: string(snapshot),
	}, net, loader, opts...)
	if err != nil {
		return err
	}

	metrics, err := tr.Run(ctx)
	for _, m := range metrics {
		fmt.Fprintf(stdout, "epoch %d/%d  train loss %.4f acc %.2f%%  val loss %.4f acc %.2f%%  %s\n",
			m.Epoch, cfg.Train.Epochs, m.TrainLoss, m.TrainAccuracy, m.ValLoss, m.ValAccuracy, m.Duration.Round(time.Millisecond))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "run %s finished, checkpoint %s\n", tr.RunID(), cfg.Train.Checkpoint)
	return nil
}
