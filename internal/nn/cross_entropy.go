package nn

import (
	"fmt"

	"github.com/chewxy/math32"
)

// SoftmaxCrossEntropy combines softmax and negative log-likelihood over a
// batch of N examples with C classes each.
//
// Forward uses the log-sum-exp trick for numerical stability:
//
//	loss = mean_i( log Σ_j exp(z_ij - max_i) + max_i - z_i,label )
//
// and Backward returns the combined gradient (softmax(z) - onehot) / N.
type SoftmaxCrossEntropy struct {
	probs   []float32
	labels  []int
	classes int
}

// NewSoftmaxCrossEntropy creates the loss.
func NewSoftmaxCrossEntropy() *SoftmaxCrossEntropy {
	return &SoftmaxCrossEntropy{}
}

// Forward computes the mean loss of logits (N×C, row-major) against labels.
func (l *SoftmaxCrossEntropy) Forward(logits []float32, labels []int) (float32, error) {
	n := len(labels)
	if n == 0 {
		return 0, fmt.Errorf("%w: cross entropy: no labels", ErrInvalidConfig)
	}
	if len(logits) == 0 || len(logits)%n != 0 {
		return 0, fmt.Errorf("%w: cross entropy: %d logits for %d labels",
			ErrInvalidConfig, len(logits), n)
	}
	classes := len(logits) / n
	for i, lbl := range labels {
		if lbl < 0 || lbl >= classes {
			return 0, fmt.Errorf("%w: cross entropy: label[%d]=%d outside [0, %d)",
				ErrInvalidConfig, i, lbl, classes)
		}
	}

	probs := make([]float32, len(logits))
	var loss float32
	for i := 0; i < n; i++ {
		row := logits[i*classes : (i+1)*classes]
		lse := softmaxInto(probs[i*classes:(i+1)*classes], row)
		loss += lse - row[labels[i]]
	}

	l.probs = probs
	l.labels = append(l.labels[:0], labels...)
	l.classes = classes
	return loss / float32(n), nil
}

// Backward returns dL/dlogits = (p - onehot(label)) / N.
func (l *SoftmaxCrossEntropy) Backward() ([]float32, error) {
	if l.probs == nil {
		return nil, fmt.Errorf("cross entropy: %w", ErrNoForward)
	}
	n := len(l.labels)
	invN := 1 / float32(n)

	grad := make([]float32, len(l.probs))
	for i := 0; i < n; i++ {
		for j := 0; j < l.classes; j++ {
			idx := i*l.classes + j
			g := l.probs[idx]
			if j == l.labels[i] {
				g--
			}
			grad[idx] = g * invN
		}
	}
	return grad, nil
}

// Probabilities returns a copy of the softmax output of the last Forward.
func (l *SoftmaxCrossEntropy) Probabilities() []float32 {
	return append([]float32(nil), l.probs...)
}

// Softmax returns the softmax of one logit vector.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) > 0 {
		softmaxInto(out, logits)
	}
	return out
}

// softmaxInto writes softmax(z) into dst and returns log Σ exp(z).
func softmaxInto(dst, z []float32) float32 {
	maxLogit := z[0]
	for _, v := range z[1:] {
		maxLogit = math32.Max(maxLogit, v)
	}
	var sum float32
	for j, v := range z {
		e := math32.Exp(v - maxLogit)
		dst[j] = e
		sum += e
	}
	for j := range dst {
		dst[j] /= sum
	}
	return math32.Log(sum) + maxLogit
}

// Argmax returns the index of the largest value, the first one on ties.
// Returns -1 for an empty slice.
func Argmax(values []float32) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
