package network

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/born-ml/voxnet/internal/serialization"
	"github.com/born-ml/voxnet/internal/tensor"
)

// WriteCheckpoint serializes the learnable parameters and the optimizer
// velocities:
//
//	conv weight, conv bias, bn gamma, bn beta, dense weight, dense bias,
//	velocity count, velocity[0..count)
//
// Each buffer is one serialization record. Running statistics are not part of
// the format.
func (n *Network) WriteCheckpoint(w io.Writer) error {
	rw := serialization.NewRecordWriter(w)

	for _, p := range n.Parameters() {
		if err := rw.WriteFloats(p.Values()); err != nil {
			return fmt.Errorf("checkpoint: %s: %w", p.Name(), err)
		}
	}

	velocities := n.opt.VelocityStates()
	if err := rw.WriteCount(len(velocities)); err != nil {
		return fmt.Errorf("checkpoint: velocity count: %w", err)
	}
	for i, v := range velocities {
		if err := rw.WriteFloats(v); err != nil {
			return fmt.Errorf("checkpoint: velocity %d: %w", i, err)
		}
	}

	if err := rw.Flush(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint restores state written by WriteCheckpoint.
//
// Every record length is checked against the live topology while reading.
// On any error (truncation, foreign topology) the network is left untouched.
func (n *Network) ReadCheckpoint(r io.Reader) error {
	rr := serialization.NewRecordReader(r)
	params := n.Parameters()

	values := make([][]float32, len(params))
	for i, p := range params {
		values[i] = make([]float32, p.Len())
		if err := rr.ReadFloatsInto(values[i]); err != nil {
			return fmt.Errorf("checkpoint: %s: %w", p.Name(), err)
		}
	}

	count, err := rr.ReadCount()
	if err != nil {
		return fmt.Errorf("checkpoint: velocity count: %w", err)
	}
	if count != n.opt.NumParams() {
		return fmt.Errorf("%w: checkpoint: %d velocity buffers, network expects %d",
			tensor.ErrShapeMismatch, count, n.opt.NumParams())
	}
	velocities := make([][]float32, count)
	for i := range velocities {
		velocities[i] = make([]float32, params[i].Len())
		if err := rr.ReadFloatsInto(velocities[i]); err != nil {
			return fmt.Errorf("checkpoint: velocity %d: %w", i, err)
		}
	}

	if err := n.opt.SetVelocityStates(velocities); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	for i, p := range params {
		copy(p.Values(), values[i])
	}
	return nil
}

// SaveCheckpoint writes the checkpoint to path.
//
// The file is written next to path under a temporary name and renamed into
// place, so an interrupted save never leaves a partial checkpoint behind.
func (n *Network) SaveCheckpoint(path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".tmp*")
	if err != nil {
		return fmt.Errorf("checkpoint: failed to create %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := n.WriteCheckpoint(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("checkpoint: failed to rename %s: %w", tmpName, err)
	}
	return nil
}

// LoadCheckpoint restores the checkpoint at path.
//
// A missing file yields an error matching fs.ErrNotExist.
func (n *Network) LoadCheckpoint(path string) error {
	//nolint:gosec // G304: Checkpoint path comes from the caller.
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checkpoint: failed to open: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := n.ReadCheckpoint(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
