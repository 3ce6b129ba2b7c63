package serialization

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/born-ml/voxnet/internal/tensor"
)

// readChunk is the number of values decoded per read from the stream.
const readChunk = 1 << 14

// RecordReader reads length-prefixed float32 records.
type RecordReader struct {
	r   *bufio.Reader
	buf []byte
}

// NewRecordReader creates a reader on top of r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{
		r:   bufio.NewReader(r),
		buf: make([]byte, readChunk*ValueSize),
	}
}

// ReadCount reads a bare int32 count.
//
// Returns ErrInvalidLength for negative counts and ErrTruncated if the
// stream ends early.
func (rr *RecordReader) ReadCount() (int, error) {
	var b [CountSize]byte
	if _, err := io.ReadFull(rr.r, b[:]); err != nil {
		return 0, truncated("count", err)
	}
	n := int32(binary.LittleEndian.Uint32(b[:])) //nolint:gosec // Two's complement reinterpretation.
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count %d", ErrInvalidLength, n)
	}
	return int(n), nil
}

// ReadFloatsInto reads one record into dst.
//
// The record length must equal len(dst), otherwise tensor.ErrShapeMismatch is
// returned before any value is read.
func (rr *RecordReader) ReadFloatsInto(dst []float32) error {
	n, err := rr.ReadCount()
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: record has %d values, want %d", tensor.ErrShapeMismatch, n, len(dst))
	}
	for off := 0; off < n; off += readChunk {
		k := min(n-off, readChunk)
		base := off
		if err := rr.readValues(k, func(i int, v float32) { dst[base+i] = v }); err != nil {
			return err
		}
	}
	return nil
}

func (rr *RecordReader) readValues(k int, emit func(i int, v float32)) error {
	b := rr.buf[:k*ValueSize]
	if _, err := io.ReadFull(rr.r, b); err != nil {
		return truncated("values", err)
	}
	for i := 0; i < k; i++ {
		emit(i, math.Float32frombits(binary.LittleEndian.Uint32(b[i*ValueSize:])))
	}
	return nil
}

func truncated(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}
