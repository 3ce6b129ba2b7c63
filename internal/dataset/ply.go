package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/voxnet/internal/tensor"
)

// Header is the parsed part of a PLY header that voxelization needs.
type Header struct {
	Format      string // "ascii" when declared
	VertexCount int
}

// LoadVoxelMask reads an ASCII PLY file into a D×H×W×1 occupancy grid.
func LoadVoxelMask(path string, grid [3]int) (tensor.Tensor, error) {
	f, err := os.Open(path) //nolint:gosec // G304: dataset paths come from the caller.
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("dataset: open ply: %w", err)
	}
	defer f.Close()

	mask, err := ReadVoxelMask(f, grid)
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("%s: %w", path, err)
	}
	return mask, nil
}

// ReadVoxelMask voxelizes the vertices of an ASCII PLY stream.
//
// Each vertex (x, y, z) is truncated toward zero and marks voxel
// (d, h, w) = (x, y, z) when that voxel lies inside grid. Columns after z are
// ignored, as are points outside the grid.
func ReadVoxelMask(r io.Reader, grid [3]int) (tensor.Tensor, error) {
	mask, err := tensor.New(grid[0], grid[1], grid[2], 1)
	if err != nil {
		return tensor.Tensor{}, err
	}

	br := bufio.NewReader(r)
	hdr, err := readHeader(br)
	if err != nil {
		return tensor.Tensor{}, err
	}

	for i := range hdr.VertexCount {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return tensor.Tensor{}, fmt.Errorf("%w: vertex %d of %d: unexpected end of file",
				ErrMalformed, i, hdr.VertexCount)
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return tensor.Tensor{}, fmt.Errorf("%w: vertex %d: want 3 coordinates, got %q",
				ErrMalformed, i, strings.TrimSpace(line))
		}

		var p [3]int
		finite := true
		for j := range 3 {
			v, err := strconv.ParseFloat(fields[j], 32)
			if err != nil {
				return tensor.Tensor{}, fmt.Errorf("%w: vertex %d: %w", ErrMalformed, i, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				finite = false
				break
			}
			p[j] = int(v)
		}
		if finite && mask.Shape().Contains(p[0], p[1], p[2], 0) {
			mask.Set(p[0], p[1], p[2], 0, 1)
		}
	}
	return mask, nil
}

// readHeader consumes lines up to and including end_header.
func readHeader(br *bufio.Reader) (Header, error) {
	var hdr Header
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimSpace(line)

		switch fields := strings.Fields(line); {
		case line == "end_header":
			return hdr, nil
		case len(fields) >= 2 && fields[0] == "format":
			hdr.Format = fields[1]
			if hdr.Format != "ascii" {
				return hdr, fmt.Errorf("%w: unsupported ply format %q", ErrMalformed, hdr.Format)
			}
		case len(fields) >= 3 && fields[0] == "element" && fields[1] == "vertex":
			n, perr := strconv.Atoi(fields[2])
			if perr != nil || n < 0 {
				return hdr, fmt.Errorf("%w: bad vertex count %q", ErrMalformed, fields[2])
			}
			hdr.VertexCount = n
		}

		if err != nil {
			if err == io.EOF {
				return hdr, fmt.Errorf("%w: missing end_header", ErrMalformed)
			}
			return hdr, fmt.Errorf("dataset: read ply header: %w", err)
		}
	}
}
