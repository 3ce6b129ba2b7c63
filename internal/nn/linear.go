package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/voxnet/internal/tensor"
)

// Linear is a fully connected layer on flat vectors.
//
// Performs: y = W @ x + b
//
// Weight shape: [out_features, in_features], row-major
// Bias shape:   [out_features]
//
// Example:
//
//	fc, err := nn.NewLinear(16*16*16*16, 10, nn.NewRand(1))
//	logits, err := fc.Forward(pooled.Flatten())
type Linear struct {
	inFeatures  int
	outFeatures int

	weight *Parameter
	bias   *Parameter

	input []float32 // copy of the last Forward input
}

// NewLinear creates a Linear layer with Xavier-uniform weights and zero bias.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) (*Linear, error) {
	if inFeatures <= 0 || outFeatures <= 0 {
		return nil, fmt.Errorf("%w: linear: features in=%d, out=%d must be positive",
			ErrInvalidConfig, inFeatures, outFeatures)
	}

	weight := NewParameter("linear.weight", inFeatures*outFeatures)
	Xavier(weight.Values(), inFeatures, outFeatures, rng)

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        NewParameter("linear.bias", outFeatures),
	}, nil
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Linear) Bias() *Parameter { return l.bias }

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Forward computes W @ x + b and caches a copy of x.
func (l *Linear) Forward(x []float32) ([]float32, error) {
	if len(x) != l.inFeatures {
		return nil, fmt.Errorf("%w: linear: input length %d, want %d",
			tensor.ErrShapeMismatch, len(x), l.inFeatures)
	}
	l.input = append(l.input[:0], x...)

	w, b := l.weight.Values(), l.bias.Values()
	y := make([]float32, l.outFeatures)
	for o := range y {
		sum := b[o]
		row := w[o*l.inFeatures : (o+1)*l.inFeatures]
		for i, wv := range row {
			sum += wv * x[i]
		}
		y[o] = sum
	}
	return y, nil
}

// Backward accumulates weight and bias gradients and returns dL/dx.
//
//	dW[o,i] += x[i] * g[o]
//	db[o]   += g[o]
//	dx[i]    = Σ_o W[o,i] * g[o]
func (l *Linear) Backward(gradOut []float32) ([]float32, error) {
	if len(l.input) == 0 {
		return nil, fmt.Errorf("linear: %w", ErrNoForward)
	}
	if len(gradOut) != l.outFeatures {
		return nil, fmt.Errorf("%w: linear: gradient length %d, want %d",
			tensor.ErrShapeMismatch, len(gradOut), l.outFeatures)
	}

	w := l.weight.Values()
	wg, bg := l.weight.Grad(), l.bias.Grad()
	gradIn := make([]float32, l.inFeatures)

	for o, g := range gradOut {
		bg[o] += g
		base := o * l.inFeatures
		for i, xv := range l.input {
			wg[base+i] += xv * g
			gradIn[i] += w[base+i] * g
		}
	}
	return gradIn, nil
}

// ZeroGrad zeroes the weight and bias gradients.
func (l *Linear) ZeroGrad() {
	l.weight.ZeroGrad()
	l.bias.ZeroGrad()
}
