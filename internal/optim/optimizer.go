// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//
// Optimizers bind to parameter buffers owned by the layers. They never
// allocate, resize or free those buffers: Step reads the gradient slice and
// updates the value slice in place.
//
// Example usage:
//
//	sgd, err := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	for _, p := range conv.Parameters() {
//	    if err := sgd.AddParameter(p); err != nil {
//	        return err
//	    }
//	}
//
//	// Training loop
//	for step := range steps {
//	    sgd.ZeroGrad()
//	    // forward + backward accumulate into the bound gradients
//	    sgd.Step()
//	}
package optim

import "errors"

// ErrInvalidConfig reports an out-of-range hyperparameter.
var ErrInvalidConfig = errors.New("invalid optimizer configuration")

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameters
//   - ZeroGrad: Clear gradients before next iteration
//   - LR: Get current learning rate (for monitoring/scheduling)
type Optimizer interface {
	// Step applies one update to every bound parameter using the gradients
	// accumulated since the last ZeroGrad.
	Step()

	// ZeroGrad clears all bound gradients.
	//
	// Backward passes only ever add into gradients, so this must run before
	// each accumulation window.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32
}

var _ Optimizer = (*SGD)(nil)
