// Package tensor implements the dense 4D voxel tensor shared by every layer.
//
// A Tensor has shape (depth, height, width, channels) and stores its values in
// one contiguous float32 slice in row-major order:
//
//	index = ((d*H + h)*W + w)*C + c
//
// The zero value is the empty tensor with shape 0x0x0x0.
package tensor

import (
	"fmt"
)

// Tensor is a dense D×H×W×C array of float32 values.
//
// Invariant: len(data) == shape.NumElements() at all times.
type Tensor struct {
	shape Shape
	data  []float32
}

// New creates a zero-filled tensor.
//
// Every dimension must be positive, otherwise ErrInvalidShape is returned.
//
// Example:
//
//	grid, err := tensor.New(32, 32, 32, 1) // one occupancy channel
func New(d, h, w, c int) (Tensor, error) {
	shape := NewShape(d, h, w, c)
	if err := shape.Validate(); err != nil {
		return Tensor{}, err
	}
	return Tensor{
		shape: shape,
		data:  make([]float32, shape.NumElements()),
	}, nil
}

// NewOf creates a zero-filled tensor of the given shape.
func NewOf(shape Shape) (Tensor, error) {
	return New(shape[0], shape[1], shape[2], shape[3])
}

// MustNew is like New but panics on an invalid shape.
//
// Intended for shapes already validated by the caller.
func MustNew(d, h, w, c int) Tensor {
	t, err := New(d, h, w, c)
	if err != nil {
		panic(err)
	}
	return t
}

// FromSlice creates a tensor holding a copy of data.
//
// len(data) must equal d*h*w*c.
func FromSlice(data []float32, d, h, w, c int) (Tensor, error) {
	t, err := New(d, h, w, c)
	if err != nil {
		return Tensor{}, err
	}
	if len(data) != len(t.data) {
		return Tensor{}, fmt.Errorf("%w: %d values for shape %s", ErrShapeMismatch, len(data), t.shape)
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns the tensor shape.
func (t Tensor) Shape() Shape { return t.shape }

// Depth returns the D extent.
func (t Tensor) Depth() int { return t.shape[0] }

// Height returns the H extent.
func (t Tensor) Height() int { return t.shape[1] }

// Width returns the W extent.
func (t Tensor) Width() int { return t.shape[2] }

// Channels returns the C extent.
func (t Tensor) Channels() int { return t.shape[3] }

// Size returns the number of elements.
func (t Tensor) Size() int { return len(t.data) }

// Empty reports whether t is the default, shapeless tensor.
func (t Tensor) Empty() bool { return t.shape.IsZero() }

// Data returns the backing slice.
//
// The slice aliases the tensor storage; layers use it for their hot loops.
func (t Tensor) Data() []float32 { return t.data }

// SameShape reports whether t and other have identical shapes.
func (t Tensor) SameShape(other Tensor) bool {
	return t.shape == other.shape
}

// Index returns the flat index of (d, h, w, c).
//
// Returns ErrOutOfBounds if any coordinate lies outside its dimension.
func (t Tensor) Index(d, h, w, c int) (int, error) {
	if !t.shape.Contains(d, h, w, c) {
		return 0, fmt.Errorf("%w: (%d,%d,%d,%d) for shape %s", ErrOutOfBounds, d, h, w, c, t.shape)
	}
	return t.shape.Offset(d, h, w, c), nil
}

// At returns the element at (d, h, w, c).
// Panics with an error wrapping ErrOutOfBounds if the coordinates are invalid.
func (t Tensor) At(d, h, w, c int) float32 {
	idx, err := t.Index(d, h, w, c)
	if err != nil {
		panic(err)
	}
	return t.data[idx]
}

// Set stores v at (d, h, w, c).
// Panics with an error wrapping ErrOutOfBounds if the coordinates are invalid.
func (t Tensor) Set(d, h, w, c int, v float32) {
	idx, err := t.Index(d, h, w, c)
	if err != nil {
		panic(err)
	}
	t.data[idx] = v
}

// Fill overwrites every element with v.
func (t Tensor) Fill(v float32) {
	for i := range t.data {
		t.data[i] = v
	}
}

// Flatten returns an independent copy of the values in storage order.
func (t Tensor) Flatten() []float32 {
	out := make([]float32, len(t.data))
	copy(out, t.data)
	return out
}

// Reshape changes the shape metadata without touching the values.
//
// Returns ErrShapeMismatch if d*h*w*c differs from the current element count.
func (t *Tensor) Reshape(d, h, w, c int) error {
	next := NewShape(d, h, w, c)
	if next.NumElements() != len(t.data) || next.Validate() != nil {
		return fmt.Errorf("%w: cannot reshape %s (%d elements) to %s",
			ErrShapeMismatch, t.shape, len(t.data), next)
	}
	t.shape = next
	return nil
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	return Tensor{shape: t.shape, data: t.Flatten()}
}

// String returns a short description of the tensor.
func (t Tensor) String() string {
	return fmt.Sprintf("Tensor[%s]", t.shape)
}
