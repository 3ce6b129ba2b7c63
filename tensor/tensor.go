// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for volumetric tensors in voxnet.
//
// A Tensor holds D×H×W×C float32 values in one contiguous row-major slice,
// indexed as ((d·H + h)·W + w)·C + c.
//
// Example:
//
//	x, err := tensor.New(32, 32, 32, 1)
//	if err != nil {
//	    return err
//	}
//	x.Set(1, 2, 3, 0, 1)
//	flat := x.Flatten()
package tensor

import (
	"github.com/born-ml/voxnet/internal/tensor"
)

// Tensor is a dense D×H×W×C float32 tensor.
type Tensor = tensor.Tensor

// Shape is the (D, H, W, C) extent of a tensor.
type Shape = tensor.Shape

// Errors returned by tensor operations.
var (
	ErrInvalidShape  = tensor.ErrInvalidShape
	ErrShapeMismatch = tensor.ErrShapeMismatch
	ErrOutOfBounds   = tensor.ErrOutOfBounds
)

// New creates a zero-filled tensor. Every extent must be positive.
func New(d, h, w, c int) (Tensor, error) {
	return tensor.New(d, h, w, c)
}

// MustNew is like New but panics on invalid extents.
func MustNew(d, h, w, c int) Tensor {
	return tensor.MustNew(d, h, w, c)
}

// FromSlice wraps data, which must hold exactly d·h·w·c values.
func FromSlice(data []float32, d, h, w, c int) (Tensor, error) {
	return tensor.FromSlice(data, d, h, w, c)
}

// NewShape builds a Shape.
func NewShape(d, h, w, c int) Shape {
	return tensor.NewShape(d, h, w, c)
}
