package optim

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/tensor"
)

// SGD implements Stochastic Gradient Descent with momentum.
//
// Update rule, per element:
//
//	velocity = momentum * velocity - lr * gradient
//	param    = param + velocity
//
// Momentum helps accelerate SGD in relevant directions and dampens oscillations.
//
// Example:
//
//	sgd, err := optim.NewSGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
//	if err := sgd.AddParam(weights, grads); err != nil {
//	    return err
//	}
//	sgd.Step()
type SGD struct {
	lr       float32
	momentum float32
	states   []paramState
}

// paramState is one binding: the layer's buffers and the owned velocity.
type paramState struct {
	values   []float32
	grad     []float32
	velocity []float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate, must be > 0 (default: 0.01)
	Momentum float32 // Momentum factor, range [0, 1) (default: 0.9)
}

// DefaultSGDConfig returns LR 0.01 and momentum 0.9.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{LR: 0.01, Momentum: 0.9}
}

// Validate checks the hyperparameter ranges.
func (c SGDConfig) Validate() error {
	if !(c.LR > 0) {
		return fmt.Errorf("%w: sgd: learning rate %g must be positive", ErrInvalidConfig, c.LR)
	}
	if !(c.Momentum >= 0 && c.Momentum < 1) {
		return fmt.Errorf("%w: sgd: momentum %g outside [0, 1)", ErrInvalidConfig, c.Momentum)
	}
	return nil
}

// NewSGD creates an SGD optimizer with no bound parameters.
func NewSGD(config SGDConfig) (*SGD, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &SGD{
		lr:       config.LR,
		momentum: config.Momentum,
	}, nil
}

// AddParam binds a value buffer and its gradient buffer.
//
// Both slices stay owned by the caller and must not be reallocated while bound.
// A zero velocity buffer of the same length is created.
func (s *SGD) AddParam(values, grad []float32) error {
	if len(values) != len(grad) {
		return fmt.Errorf("%w: sgd: %d values with %d gradients",
			tensor.ErrShapeMismatch, len(values), len(grad))
	}
	s.states = append(s.states, paramState{
		values:   values,
		grad:     grad,
		velocity: make([]float32, len(values)),
	})
	return nil
}

// AddParameter binds an nn.Parameter.
func (s *SGD) AddParameter(p *nn.Parameter) error {
	if err := s.AddParam(p.Values(), p.Grad()); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	return nil
}

// Step performs a single optimization step over every binding.
func (s *SGD) Step() {
	for _, st := range s.states {
		v, g, p := st.velocity, st.grad, st.values
		for i := range p {
			v[i] = s.momentum*v[i] - s.lr*g[i]
			p[i] += v[i]
		}
	}
}

// ZeroGrad clears gradients for all bound parameters.
func (s *SGD) ZeroGrad() {
	for _, st := range s.states {
		clear(st.grad)
	}
}

// ResetState zeroes every velocity buffer, as if no step had been taken.
func (s *SGD) ResetState() {
	for _, st := range s.states {
		clear(st.velocity)
	}
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD) SetLR(lr float32) error {
	if !(lr > 0) {
		return fmt.Errorf("%w: sgd: learning rate %g must be positive", ErrInvalidConfig, lr)
	}
	s.lr = lr
	return nil
}

// Momentum returns the momentum factor.
func (s *SGD) Momentum() float32 {
	return s.momentum
}

// NumParams returns the number of bindings.
func (s *SGD) NumParams() int {
	return len(s.states)
}

// VelocityStates returns copies of the velocity buffers in registration order.
func (s *SGD) VelocityStates() [][]float32 {
	out := make([][]float32, len(s.states))
	for i, st := range s.states {
		out[i] = append([]float32(nil), st.velocity...)
	}
	return out
}

// SetVelocityStates overwrites the velocity buffers.
//
// The buffer count and every length must match the bindings; nothing is
// modified otherwise.
func (s *SGD) SetVelocityStates(states [][]float32) error {
	if len(states) != len(s.states) {
		return fmt.Errorf("%w: sgd: %d velocity buffers for %d parameters",
			tensor.ErrShapeMismatch, len(states), len(s.states))
	}
	for i, v := range states {
		if len(v) != len(s.states[i].velocity) {
			return fmt.Errorf("%w: sgd: velocity %d has length %d, want %d",
				tensor.ErrShapeMismatch, i, len(v), len(s.states[i].velocity))
		}
	}
	for i, v := range states {
		copy(s.states[i].velocity, v)
	}
	return nil
}
