package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/voxnet/internal/tensor"
)

// Padding selects the output-size convention of Conv3D and MaxPool3D.
type Padding int

const (
	// Valid applies no padding: out = (in - k)/s + 1.
	Valid Padding = iota
	// Same pads implicitly with zeros: out = ceil(in / s), with the window
	// shifted by k/2 towards the low side of every axis.
	Same
)

// String returns "valid" or "same".
func (p Padding) String() string {
	switch p {
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Padding(%d)", int(p))
	}
}

// ParsePadding parses "valid" or "same" (case-insensitive).
func ParsePadding(s string) (Padding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "valid":
		return Valid, nil
	case "same":
		return Same, nil
	default:
		return 0, fmt.Errorf("%w: unknown padding %q", ErrInvalidConfig, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Padding) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Padding) UnmarshalText(text []byte) error {
	v, err := ParsePadding(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// window describes a sliding 3D window shared by convolution and pooling.
type window struct {
	kernel  [3]int
	stride  [3]int
	padding Padding
}

func (w window) validate(layer string) error {
	for i := 0; i < 3; i++ {
		if w.kernel[i] <= 0 {
			return fmt.Errorf("%w: %s: kernel %v must be positive", ErrInvalidConfig, layer, w.kernel)
		}
		if w.stride[i] <= 0 {
			return fmt.Errorf("%w: %s: stride %v must be positive", ErrInvalidConfig, layer, w.stride)
		}
	}
	if w.padding != Valid && w.padding != Same {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, layer, w.padding)
	}
	return nil
}

// offset returns the low-side shift applied to window origins on axis i.
func (w window) offset(i int) int {
	if w.padding == Same {
		return w.kernel[i] / 2
	}
	return 0
}

// outputDims returns the spatial output size for a D×H×W input.
func (w window) outputDims(in tensor.Shape) ([3]int, error) {
	var out [3]int
	for i := 0; i < 3; i++ {
		out[i] = OutputSize(in[i], w.kernel[i], w.stride[i], w.padding)
		if out[i] <= 0 {
			return out, fmt.Errorf("%w: kernel %v larger than input %s with %s padding",
				tensor.ErrShapeMismatch, w.kernel, in, w.padding)
		}
	}
	return out, nil
}

// OutputSize returns the output extent along one axis.
//
//	Valid: (in - k)/s + 1   (0 if the kernel does not fit)
//	Same:  ceil(in / s)
func OutputSize(in, kernel, stride int, padding Padding) int {
	if padding == Same {
		return (in + stride - 1) / stride
	}
	if in < kernel {
		return 0
	}
	return (in-kernel)/stride + 1
}
