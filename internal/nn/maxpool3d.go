package nn

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/chewxy/math32"
)

// MaxPool3DConfig describes a MaxPool3D layer.
type MaxPool3DConfig struct {
	Window  [3]int
	Stride  [3]int
	Padding Padding
}

// Validate checks that window and stride are positive.
func (c MaxPool3DConfig) Validate() error {
	return c.window().validate("maxpool3d")
}

func (c MaxPool3DConfig) window() window {
	return window{kernel: c.Window, stride: c.Stride, padding: c.Padding}
}

// MaxPool3D takes the maximum over each window, channel by channel.
//
// Forward records the flat input index of every maximum. Backward routes each
// output gradient entirely to that index. Ties go to the first element in
// (kd, kh, kw) scan order. Padded positions never win.
type MaxPool3D struct {
	cfg MaxPool3DConfig
	win window

	argmax   []int
	inShape  tensor.Shape
	outShape tensor.Shape
	gradIn   tensor.Tensor

	par parallel.Config
}

// NewMaxPool3D creates a MaxPool3D layer.
func NewMaxPool3D(cfg MaxPool3DConfig) (*MaxPool3D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MaxPool3D{
		cfg: cfg,
		win: cfg.window(),
		par: parallel.DefaultConfig().WithMinChunk(1),
	}, nil
}

// Config returns the layer configuration.
func (p *MaxPool3D) Config() MaxPool3DConfig { return p.cfg }

// SetParallel replaces the parallel execution config.
func (p *MaxPool3D) SetParallel(cfg parallel.Config) { p.par = cfg.WithMinChunk(1) }

// OutputShape returns the shape Forward produces for an input of shape in.
func (p *MaxPool3D) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	dims, err := p.win.outputDims(in)
	if err != nil {
		return tensor.Shape{}, fmt.Errorf("maxpool3d: %w", err)
	}
	return tensor.NewShape(dims[0], dims[1], dims[2], in.Channels()), nil
}

// Forward pools x and records the argmax of every output element.
func (p *MaxPool3D) Forward(x tensor.Tensor) (tensor.Tensor, error) {
	in := x.Shape()
	out, err := p.OutputShape(in)
	if err != nil {
		return tensor.Tensor{}, err
	}
	y, err := tensor.NewOf(out)
	if err != nil {
		return tensor.Tensor{}, err
	}

	argmax := make([]int, out.NumElements())
	xd, yd := x.Data(), y.Data()
	k, s := p.cfg.Window, p.cfg.Stride
	offD, offH, offW := p.win.offset(0), p.win.offset(1), p.win.offset(2)

	parallel.For(in.Channels(), func(c int) {
		for oz := 0; oz < out.Depth(); oz++ {
			for oy := 0; oy < out.Height(); oy++ {
				for ox := 0; ox < out.Width(); ox++ {
					best := math32.Inf(-1)
					bestIdx := -1

					for kd := 0; kd < k[0]; kd++ {
						id := oz*s[0] + kd - offD
						if id < 0 || id >= in.Depth() {
							continue
						}
						for kh := 0; kh < k[1]; kh++ {
							ih := oy*s[1] + kh - offH
							if ih < 0 || ih >= in.Height() {
								continue
							}
							for kw := 0; kw < k[2]; kw++ {
								iw := ox*s[2] + kw - offW
								if iw < 0 || iw >= in.Width() {
									continue
								}
								idx := in.Offset(id, ih, iw, c)
								if v := xd[idx]; v > best || bestIdx < 0 {
									best, bestIdx = v, idx
								}
							}
						}
					}

					o := out.Offset(oz, oy, ox, c)
					yd[o] = best
					argmax[o] = bestIdx
				}
			}
		}
	}, p.par)

	p.argmax = argmax
	p.inShape = in
	p.outShape = out
	return y, nil
}

// Backward scatters gradOut to the recorded argmax positions.
//
// Overlapping windows that share a maximum add their gradients.
func (p *MaxPool3D) Backward(gradOut tensor.Tensor) (tensor.Tensor, error) {
	if p.argmax == nil {
		return tensor.Tensor{}, fmt.Errorf("maxpool3d: %w", ErrNoForward)
	}
	if gradOut.Shape() != p.outShape {
		return tensor.Tensor{}, fmt.Errorf("%w: maxpool3d: gradient shape %s, want %s",
			tensor.ErrShapeMismatch, gradOut.Shape(), p.outShape)
	}

	if p.gradIn.Shape() != p.inShape {
		gi, err := tensor.NewOf(p.inShape)
		if err != nil {
			return tensor.Tensor{}, err
		}
		p.gradIn = gi
	} else {
		p.gradIn.Fill(0)
	}

	gi, gd := p.gradIn.Data(), gradOut.Data()
	for o, g := range gd {
		gi[p.argmax[o]] += g
	}
	return p.gradIn.Clone(), nil
}

// ZeroGrad clears the input-gradient buffer. The argmax map stays valid until
// the next Forward.
func (p *MaxPool3D) ZeroGrad() {
	if !p.gradIn.Empty() {
		p.gradIn.Fill(0)
	}
}

// Parameters returns nil: MaxPool3D has no learnable state.
func (p *MaxPool3D) Parameters() []*Parameter { return nil }

// Argmax returns a copy of the flat input index recorded for every output
// element by the last Forward.
func (p *MaxPool3D) Argmax() []int {
	return append([]int(nil), p.argmax...)
}
