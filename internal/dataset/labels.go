package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/born-ml/voxnet/internal/tensor"
)

// LoadLabels reads every whitespace-separated integer of a label file.
func LoadLabels(path string) ([]int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: dataset paths come from the caller.
	if err != nil {
		return nil, fmt.Errorf("dataset: open labels: %w", err)
	}
	defer f.Close()

	labels, err := readInts(f, -1)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}

// LoadClassLabel returns the first integer of a _cls.txt file.
func LoadClassLabel(path string) (int, error) {
	labels, err := LoadLabels(path)
	if err != nil {
		return 0, err
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyLabels, path)
	}
	return labels[0], nil
}

// LoadSegMask reads a _seg.txt file into a D×H×W×1 tensor of label values.
func LoadSegMask(path string, grid [3]int) (tensor.Tensor, error) {
	f, err := os.Open(path) //nolint:gosec // G304: dataset paths come from the caller.
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("dataset: open seg labels: %w", err)
	}
	defer f.Close()

	mask, err := tensor.New(grid[0], grid[1], grid[2], 1)
	if err != nil {
		return tensor.Tensor{}, err
	}
	n := mask.Size()

	labels, err := readInts(f, n)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("%s: %w", path, err)
	}
	if len(labels) < n {
		return tensor.Tensor{}, fmt.Errorf("%w: %s: want %d labels, got %d", ErrMalformed, path, n, len(labels))
	}

	data := mask.Data()
	for i, v := range labels {
		data[i] = float32(v)
	}
	return mask, nil
}

// readInts scans integers until EOF or until limit values were read.
// limit < 0 means no limit.
func readInts(r io.Reader, limit int) ([]int, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	var out []int
	for (limit < 0 || len(out) < limit) && sc.Scan() {
		v, err := strconv.Atoi(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("%w: label %d: %w", ErrMalformed, len(out), err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read labels: %w", err)
	}
	return out, nil
}
