package serialization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Format constants.
const (
	// CountSize is the size of a record header in bytes.
	CountSize = 4
	// ValueSize is the size of one float32 value in bytes.
	ValueSize = 4
	// MaxRecordLength bounds the element count of one record.
	MaxRecordLength = math.MaxInt32
)

// RecordWriter writes length-prefixed float32 records.
//
// Output is buffered; call Flush when done.
type RecordWriter struct {
	w   *bufio.Writer
	buf [ValueSize]byte
}

// NewRecordWriter creates a writer on top of w.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// WriteCount writes a bare int32 count.
func (rw *RecordWriter) WriteCount(n int) error {
	if n < 0 || n > MaxRecordLength {
		return fmt.Errorf("%w: count %d", ErrInvalidLength, n)
	}
	binary.LittleEndian.PutUint32(rw.buf[:], uint32(int32(n))) //nolint:gosec // Bounds checked above.
	return rw.write(rw.buf[:])
}

// WriteFloats writes len(values) followed by the values.
func (rw *RecordWriter) WriteFloats(values []float32) error {
	if err := rw.WriteCount(len(values)); err != nil {
		return err
	}
	for _, v := range values {
		binary.LittleEndian.PutUint32(rw.buf[:], math.Float32bits(v))
		if err := rw.write(rw.buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying writer.
func (rw *RecordWriter) Flush() error {
	if err := rw.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush records: %w", err)
	}
	return nil
}

func (rw *RecordWriter) write(b []byte) error {
	if _, err := rw.w.Write(b); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}
