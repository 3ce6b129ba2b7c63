package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
)

// Conv3DConfig describes a Conv3D layer.
type Conv3DConfig struct {
	InChannels  int
	OutChannels int
	Kernel      [3]int // kD, kH, kW
	Stride      [3]int // sD, sH, sW
	Padding     Padding
}

// Validate checks that every extent is positive.
func (c Conv3DConfig) Validate() error {
	if c.InChannels <= 0 || c.OutChannels <= 0 {
		return fmt.Errorf("%w: conv3d: channels in=%d, out=%d must be positive",
			ErrInvalidConfig, c.InChannels, c.OutChannels)
	}
	return c.window().validate("conv3d")
}

func (c Conv3DConfig) window() window {
	return window{kernel: c.Kernel, stride: c.Stride, padding: c.Padding}
}

// KernelVolume returns kD*kH*kW.
func (c Conv3DConfig) KernelVolume() int {
	return c.Kernel[0] * c.Kernel[1] * c.Kernel[2]
}

// Conv3D is a 3D convolutional layer over D×H×W×C voxel tensors.
//
// Performs convolution: output = Conv3D(input, weight) + bias
//
// Input shape:  [D, H, W, in_channels]
// Weight shape: [kD, kH, kW, in_channels, out_channels]
// Bias shape:   [out_channels]
// Output shape: [outD, outH, outW, out_channels]
//
// Where, per spatial axis:
//
//	valid: out = (in - k)/stride + 1
//	same:  out = ceil(in / stride), window origin shifted by k/2
//
// Positions that fall outside the input read as zero.
//
// Example:
//
//	conv, err := nn.NewConv3D(nn.Conv3DConfig{
//		InChannels: 1, OutChannels: 16,
//		Kernel: [3]int{3, 3, 3}, Stride: [3]int{1, 1, 1},
//		Padding: nn.Same,
//	}, nn.NewRand(42))
//	y, err := conv.Forward(grid) // 32x32x32x1 -> 32x32x32x16
type Conv3D struct {
	cfg Conv3DConfig
	win window

	weight *Parameter // [kD, kH, kW, in, out]
	bias   *Parameter // [out]

	par parallel.Config
}

// NewConv3D creates a Conv3D layer with Xavier-uniform weights and zero bias.
//
//	fan_in  = in_channels  * kD * kH * kW
//	fan_out = out_channels * kD * kH * kW
func NewConv3D(cfg Conv3DConfig, rng *rand.Rand) (*Conv3D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kvol := cfg.KernelVolume()
	weight := NewParameter("conv3d.weight", kvol*cfg.InChannels*cfg.OutChannels)
	Xavier(weight.Values(), cfg.InChannels*kvol, cfg.OutChannels*kvol, rng)

	return &Conv3D{
		cfg:    cfg,
		win:    cfg.window(),
		weight: weight,
		bias:   NewParameter("conv3d.bias", cfg.OutChannels),
		par:    parallel.DefaultConfig(),
	}, nil
}

// Config returns the layer configuration.
func (c *Conv3D) Config() Conv3DConfig { return c.cfg }

// Weight returns the kernel parameter.
func (c *Conv3D) Weight() *Parameter { return c.weight }

// Bias returns the bias parameter.
func (c *Conv3D) Bias() *Parameter { return c.bias }

// Parameters returns [weight, bias].
func (c *Conv3D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// SetParallel replaces the parallel execution config.
func (c *Conv3D) SetParallel(cfg parallel.Config) { c.par = cfg }

// ZeroGrad zeroes the weight and bias gradients.
func (c *Conv3D) ZeroGrad() {
	c.weight.ZeroGrad()
	c.bias.ZeroGrad()
}

// OutputShape returns the shape Forward produces for an input of shape in.
func (c *Conv3D) OutputShape(in tensor.Shape) (tensor.Shape, error) {
	if in.Channels() != c.cfg.InChannels {
		return tensor.Shape{}, fmt.Errorf("%w: conv3d: input has %d channels, want %d",
			tensor.ErrShapeMismatch, in.Channels(), c.cfg.InChannels)
	}
	dims, err := c.win.outputDims(in)
	if err != nil {
		return tensor.Shape{}, fmt.Errorf("conv3d: %w", err)
	}
	return tensor.NewShape(dims[0], dims[1], dims[2], c.cfg.OutChannels), nil
}

// widx returns the flat offset of weight[kd, kh, kw, 0, 0].
func (c *Conv3D) widx(kd, kh, kw int) int {
	k := c.cfg.Kernel
	return ((kd*k[1]+kh)*k[2] + kw) * c.cfg.InChannels * c.cfg.OutChannels
}

// Forward computes the convolution.
//
// Each output voxel is written by exactly one goroutine, so the result does
// not depend on the worker count.
func (c *Conv3D) Forward(x tensor.Tensor) (tensor.Tensor, error) {
	outShape, err := c.OutputShape(x.Shape())
	if err != nil {
		return tensor.Tensor{}, err
	}
	out, err := tensor.NewOf(outShape)
	if err != nil {
		return tensor.Tensor{}, err
	}

	in := x.Shape()
	xd := x.Data()
	od := out.Data()
	w := c.weight.Values()
	b := c.bias.Values()
	inC, outC := c.cfg.InChannels, c.cfg.OutChannels
	k, s := c.cfg.Kernel, c.cfg.Stride
	offD, offH, offW := c.win.offset(0), c.win.offset(1), c.win.offset(2)
	oH, oW := outShape.Height(), outShape.Width()

	parallel.For(outShape.Spatial(), func(v int) {
		oz := v / (oH * oW)
		oy := (v / oW) % oH
		ox := v % oW

		acc := od[v*outC : (v+1)*outC]
		copy(acc, b)

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
					xBase := in.Offset(id, ih, iw, 0)
					wBase := c.widx(kd, kh, kw)
					for ic := 0; ic < inC; ic++ {
						xv := xd[xBase+ic]
						row := w[wBase+ic*outC : wBase+(ic+1)*outC]
						for oc, wv := range row {
							acc[oc] += xv * wv
						}
					}
				}
			}
		}
	}, c.par)

	return out, nil
}

// Backward accumulates weight and bias gradients and returns the gradient
// with respect to x.
//
// x must be the tensor passed to the matching Forward; the layer keeps no
// input cache of its own. gradOut must have the shape Forward(x) produced.
//
// Work is partitioned by output channel for the parameter gradients and by
// input channel for the input gradient, so every accumulator is summed in the
// sequential order.
func (c *Conv3D) Backward(x, gradOut tensor.Tensor) (tensor.Tensor, error) {
	outShape, err := c.OutputShape(x.Shape())
	if err != nil {
		return tensor.Tensor{}, err
	}
	if gradOut.Shape() != outShape {
		return tensor.Tensor{}, fmt.Errorf("%w: conv3d: gradient shape %s, want %s",
			tensor.ErrShapeMismatch, gradOut.Shape(), outShape)
	}
	gradIn, err := tensor.NewOf(x.Shape())
	if err != nil {
		return tensor.Tensor{}, err
	}

	par := c.par.WithMinChunk(1)

	parallel.For(c.cfg.OutChannels, func(oc int) {
		c.accumulateParamGrads(x, gradOut, oc)
	}, par)

	parallel.For(c.cfg.InChannels, func(ic int) {
		c.accumulateInputGrad(gradIn, gradOut, ic)
	}, par)

	return gradIn, nil
}

// taps calls f for every in-bounds (kernel tap, input voxel) pair of output
// voxel (oz, oy, ox). wBase is the weight offset of the tap, xBase the input
// offset of channel 0.
func (c *Conv3D) taps(in tensor.Shape, oz, oy, ox int, f func(wBase, xBase int)) {
	k, s := c.cfg.Kernel, c.cfg.Stride
	for kd := 0; kd < k[0]; kd++ {
		id := oz*s[0] + kd - c.win.offset(0)
		if id < 0 || id >= in.Depth() {
			continue
		}
		for kh := 0; kh < k[1]; kh++ {
			ih := oy*s[1] + kh - c.win.offset(1)
			if ih < 0 || ih >= in.Height() {
				continue
			}
			for kw := 0; kw < k[2]; kw++ {
				iw := ox*s[2] + kw - c.win.offset(2)
				if iw < 0 || iw >= in.Width() {
					continue
				}
				f(c.widx(kd, kh, kw), in.Offset(id, ih, iw, 0))
			}
		}
	}
}

func (c *Conv3D) accumulateParamGrads(x, gradOut tensor.Tensor, oc int) {
	in, out := x.Shape(), gradOut.Shape()
	xd, gd := x.Data(), gradOut.Data()
	wg := c.weight.Grad()
	inC, outC := c.cfg.InChannels, c.cfg.OutChannels

	var bsum float32
	for oz := 0; oz < out.Depth(); oz++ {
		for oy := 0; oy < out.Height(); oy++ {
			for ox := 0; ox < out.Width(); ox++ {
				g := gd[out.Offset(oz, oy, ox, oc)]
				bsum += g
				if g == 0 {
					continue
				}
				c.taps(in, oz, oy, ox, func(wBase, xBase int) {
					for ic := 0; ic < inC; ic++ {
						wg[wBase+ic*outC+oc] += xd[xBase+ic] * g
					}
				})
			}
		}
	}
	c.bias.Grad()[oc] += bsum
}

func (c *Conv3D) accumulateInputGrad(gradIn, gradOut tensor.Tensor, ic int) {
	in, out := gradIn.Shape(), gradOut.Shape()
	gi, gd := gradIn.Data(), gradOut.Data()
	w := c.weight.Values()
	outC := c.cfg.OutChannels

	for oz := 0; oz < out.Depth(); oz++ {
		for oy := 0; oy < out.Height(); oy++ {
			for ox := 0; ox < out.Width(); ox++ {
				gBase := out.Offset(oz, oy, ox, 0)
				grow := gd[gBase : gBase+outC]
				c.taps(in, oz, oy, ox, func(wBase, xBase int) {
					row := w[wBase+ic*outC : wBase+(ic+1)*outC]
					var sum float32
					for oc, g := range grow {
						sum += row[oc] * g
					}
					gi[xBase+ic] += sum
				})
			}
		}
	}
}
