package main

import (
	"fmt"
	"io"

	"github.com/born-ml/voxnet/internal/config"
	"github.com/born-ml/voxnet/internal/dataset"
	"github.com/born-ml/voxnet/internal/network"
)

func inferCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("infer", stderr)
	var f commonFlags
	f.register(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "voxnet infer: no PLY files given")
		return errUsage
	}

	cfg, err := f.load(fs)
	if err != nil {
		return err
	}
	net, err := loadNetwork(cfg)
	if err != nil {
		return err
	}

	grid := cfg.Dataset(nil).Grid
	for _, path := range fs.Args() {
		x, err := dataset.LoadVoxelMask(path, grid)
		if err != nil {
			return err
		}
		class, probs, err := net.Predict(x)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s\t%d\t%.4f\n", path, class, probs[class])
	}
	return nil
}

// loadNetwork builds the configured network and restores its checkpoint.
func loadNetwork(cfg config.File) (*network.Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	net, err := network.New(cfg.Network())
	if err != nil {
		return nil, err
	}
	if err := net.LoadCheckpoint(cfg.Train.Checkpoint); err != nil {
		return nil, err
	}
	return net, nil
}
