package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxCrossEntropy_UniformLogits(t *testing.T) {
	ce := NewSoftmaxCrossEntropy()

	loss, err := ce.Forward([]float32{0, 0, 0}, []int{1})
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3), float64(loss), 1e-6)

	grad, err := ce.Backward()
	require.NoError(t, err)
	want := []float32{1.0 / 3, -2.0 / 3, 1.0 / 3}
	for i := range want {
		assert.InDelta(t, want[i], grad[i], 1e-6)
	}
}

func TestSoftmaxCrossEntropy_BatchMean(t *testing.T) {
	ce := NewSoftmaxCrossEntropy()

	loss, err := ce.Forward([]float32{2, 0, 0, 1}, []int{0, 1})
	require.NoError(t, err)

	p00 := math.Exp(2) / (math.Exp(2) + 1)
	p11 := math.Exp(1) / (1 + math.Exp(1))
	assert.InDelta(t, (-math.Log(p00)-math.Log(p11))/2, float64(loss), 1e-6)

	grad, err := ce.Backward()
	require.NoError(t, err)
	want := []float64{(p00 - 1) / 2, (1 - p00) / 2, (1 - p11) / 2, (p11 - 1) / 2}
	for i := range want {
		assert.InDelta(t, want[i], float64(grad[i]), 1e-6)
	}

	probs := ce.Probabilities()
	require.Len(t, probs, 4)
	assert.InDelta(t, p00, float64(probs[0]), 1e-6)
}

func TestSoftmaxCrossEntropy_LargeLogitsStable(t *testing.T) {
	ce := NewSoftmaxCrossEntropy()

	loss, err := ce.Forward([]float32{1000, 0, -1000}, []int{0})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(float64(loss)))
	assert.InDelta(t, 0, loss, 1e-6)
}

func TestSoftmaxCrossEntropy_Errors(t *testing.T) {
	ce := NewSoftmaxCrossEntropy()

	_, err := ce.Backward()
	require.ErrorIs(t, err, ErrNoForward)

	_, err = ce.Forward([]float32{1, 2}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig, "no labels")

	_, err = ce.Forward([]float32{1, 2, 3}, []int{0, 1})
	require.ErrorIs(t, err, ErrInvalidConfig, "logits not divisible")

	_, err = ce.Forward([]float32{1, 2}, []int{2})
	require.ErrorIs(t, err, ErrInvalidConfig, "label out of range")

	_, err = ce.Forward([]float32{1, 2}, []int{-1})
	require.ErrorIs(t, err, ErrInvalidConfig, "negative label")
}

func TestSoftmaxCrossEntropy_GradientCheck(t *testing.T) {
	rng := NewRand(17)
	ce := NewSoftmaxCrossEntropy()
	logits := randomSlice(rng, 3*5)
	for i := range logits {
		logits[i] *= 3
	}
	labels := []int{4, 0, 2}

	_, err := ce.Forward(logits, labels)
	require.NoError(t, err)
	grad, err := ce.Backward()
	require.NoError(t, err)

	numeric := numericGrad(logits, func() float64 {
		loss, err := ce.Forward(logits, labels)
		require.NoError(t, err)
		return float64(loss)
	})
	assertGradClose(t, numeric, grad, "logits")
}

func TestSoftmaxAndArgmax(t *testing.T) {
	p := Softmax([]float32{1, 3, 3, 0})

	var sum float32
	for _, v := range p {
		sum += v
	}
	assert.InDelta(t, 1, sum, 1e-6)
	assert.Equal(t, 1, Argmax(p), "ties resolve to the first maximum")
	assert.Equal(t, -1, Argmax(nil))
	assert.Empty(t, Softmax(nil))
}
