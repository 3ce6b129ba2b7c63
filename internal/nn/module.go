// Package nn implements the differentiable primitives of the voxnet engine.
//
// This package provides:
//   - Conv3D: 3D convolution with VALID/SAME padding
//   - BatchNorm3D: per-channel batch normalization
//   - ReLU3D: rectified linear activation
//   - MaxPool3D: 3D max pooling with exact gradient routing
//   - Linear: fully connected layer on flat vectors
//   - SoftmaxCrossEntropy: loss and its gradient
//
// Every primitive pairs a hand-derived Backward with its Forward. There is no
// autodiff tape: each layer caches exactly what its Backward needs from the
// last Forward call.
//
// Gradient contract: Backward only ever adds into parameter gradients. The
// caller zeroes them (ZeroGrad) before each optimization step, which makes it
// possible to accumulate gradients over several examples.
package nn

// Layer is the capability set shared by all primitives.
type Layer interface {
	// ZeroGrad resets gradient accumulators and, for layers that document it,
	// the forward cache. Learnable values are never touched.
	ZeroGrad()

	// Parameters returns the learnable parameters in a fixed order.
	// Layers without learnable state return nil.
	Parameters() []*Parameter
}

var (
	_ Layer = (*Conv3D)(nil)
	_ Layer = (*BatchNorm3D)(nil)
	_ Layer = (*ReLU3D)(nil)
	_ Layer = (*MaxPool3D)(nil)
	_ Layer = (*Linear)(nil)
)
