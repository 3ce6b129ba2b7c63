package nn

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/tensor"
)

// ReLU3D applies y = max(x, 0) element-wise.
//
// The gradient passes through where the input was strictly positive and is
// zero elsewhere, including at x == 0.
type ReLU3D struct {
	mask  []bool
	shape tensor.Shape
}

// NewReLU3D creates a ReLU3D activation.
func NewReLU3D() *ReLU3D {
	return &ReLU3D{}
}

// Forward applies the activation and caches the positive mask.
func (r *ReLU3D) Forward(x tensor.Tensor) (tensor.Tensor, error) {
	y, err := tensor.NewOf(x.Shape())
	if err != nil {
		return tensor.Tensor{}, fmt.Errorf("relu3d: %w", err)
	}

	xd, yd := x.Data(), y.Data()
	if cap(r.mask) >= len(xd) {
		r.mask = r.mask[:len(xd)]
	} else {
		r.mask = make([]bool, len(xd))
	}
	for i, v := range xd {
		pos := v > 0
		r.mask[i] = pos
		if pos {
			yd[i] = v
		}
	}
	r.shape = x.Shape()
	return y, nil
}

// Backward masks gradOut with the cached activation pattern.
func (r *ReLU3D) Backward(gradOut tensor.Tensor) (tensor.Tensor, error) {
	if r.shape.IsZero() {
		return tensor.Tensor{}, fmt.Errorf("relu3d: %w", ErrNoForward)
	}
	if gradOut.Shape() != r.shape {
		return tensor.Tensor{}, fmt.Errorf("%w: relu3d: gradient shape %s, want %s",
			tensor.ErrShapeMismatch, gradOut.Shape(), r.shape)
	}

	gradIn, err := tensor.NewOf(r.shape)
	if err != nil {
		return tensor.Tensor{}, err
	}
	gd, gi := gradOut.Data(), gradIn.Data()
	for i, pos := range r.mask {
		if pos {
			gi[i] = gd[i]
		}
	}
	return gradIn, nil
}

// ZeroGrad drops the cached mask.
func (r *ReLU3D) ZeroGrad() {
	r.mask = r.mask[:0]
	r.shape = tensor.Shape{}
}

// Parameters returns nil: ReLU3D has no learnable state.
func (r *ReLU3D) Parameters() []*Parameter { return nil }
