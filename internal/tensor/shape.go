package tensor

import "fmt"

// Shape is the (depth, height, width, channels) extent of a Tensor.
type Shape [4]int

// NewShape builds a Shape from its four extents.
func NewShape(d, h, w, c int) Shape {
	return Shape{d, h, w, c}
}

// Depth returns the D extent.
func (s Shape) Depth() int { return s[0] }

// Height returns the H extent.
func (s Shape) Height() int { return s[1] }

// Width returns the W extent.
func (s Shape) Width() int { return s[2] }

// Channels returns the C extent.
func (s Shape) Channels() int { return s[3] }

// Spatial returns D*H*W, the number of voxels per channel.
func (s Shape) Spatial() int {
	return s[0] * s[1] * s[2]
}

// NumElements returns D*H*W*C.
func (s Shape) NumElements() int {
	return s[0] * s[1] * s[2] * s[3]
}

// IsZero reports whether s is the all-zero shape of an empty tensor.
func (s Shape) IsZero() bool {
	return s == Shape{}
}

// Validate checks that every dimension is positive.
func (s Shape) Validate() error {
	names := [4]string{"depth", "height", "width", "channels"}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: %s=%d (must be > 0)", ErrInvalidShape, names[i], dim)
		}
	}
	return nil
}

// Offset returns the row-major flat index of (d, h, w, c) without bounds checks.
//
//	index = ((d*H + h)*W + w)*C + c
func (s Shape) Offset(d, h, w, c int) int {
	return ((d*s[1]+h)*s[2]+w)*s[3] + c
}

// Contains reports whether (d, h, w, c) lies inside the shape.
func (s Shape) Contains(d, h, w, c int) bool {
	return d >= 0 && d < s[0] &&
		h >= 0 && h < s[1] &&
		w >= 0 && w < s[2] &&
		c >= 0 && c < s[3]
}

// String formats the shape as DxHxWxC.
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", s[0], s[1], s[2], s[3])
}
