package nn

import (
	"testing"

	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear_ForwardBackward(t *testing.T) {
	fc, err := NewLinear(2, 2, NewRand(1))
	require.NoError(t, err)
	copy(fc.Weight().Values(), []float32{1, 0, 0, 1})
	copy(fc.Bias().Values(), []float32{1, 2})

	y, err := fc.Forward([]float32{10, 20})
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, y)

	gx, err := fc.Backward([]float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, fc.Bias().Grad())
	assert.Equal(t, []float32{10, 20, 10, 20}, fc.Weight().Grad())
	assert.Equal(t, []float32{1, 1}, gx)

	fc.ZeroGrad()
	assert.Equal(t, []float32{0, 0, 0, 0}, fc.Weight().Grad())
	assert.Equal(t, []float32{0, 0}, fc.Bias().Grad())
	assert.Equal(t, []float32{1, 0, 0, 1}, fc.Weight().Values(), "ZeroGrad keeps values")
}

func TestLinear_CachesCopyOfInput(t *testing.T) {
	fc, err := NewLinear(2, 1, NewRand(1))
	require.NoError(t, err)

	x := []float32{3, 4}
	_, err = fc.Forward(x)
	require.NoError(t, err)
	x[0], x[1] = 100, 100

	_, err = fc.Backward([]float32{1})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, fc.Weight().Grad())
}

func TestLinear_Errors(t *testing.T) {
	_, err := NewLinear(0, 3, NewRand(1))
	require.ErrorIs(t, err, ErrInvalidConfig)

	fc, err := NewLinear(3, 2, NewRand(1))
	require.NoError(t, err)

	_, err = fc.Backward([]float32{1, 1})
	require.ErrorIs(t, err, ErrNoForward)

	_, err = fc.Forward([]float32{1, 2})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = fc.Forward([]float32{1, 2, 3})
	require.NoError(t, err)
	_, err = fc.Backward([]float32{1, 2, 3})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestLinear_XavierBounds(t *testing.T) {
	fc, err := NewLinear(64, 10, NewRand(9))
	require.NoError(t, err)

	bound := XavierBound(64, 10)
	for _, w := range fc.Weight().Values() {
		assert.LessOrEqual(t, w, bound)
		assert.GreaterOrEqual(t, w, -bound)
	}
	assert.Equal(t, make([]float32, 10), fc.Bias().Values())
}

func TestLinear_GradientCheck(t *testing.T) {
	rng := NewRand(13)
	fc, err := NewLinear(6, 4, rng)
	require.NoError(t, err)
	copy(fc.Bias().Values(), randomSlice(rng, 4))

	x := randomSlice(rng, 6)
	r, loss := probe(rng, 4)

	f := func() float64 {
		y, err := fc.Forward(x)
		require.NoError(t, err)
		return loss(y)
	}

	_, err = fc.Forward(x)
	require.NoError(t, err)
	gx, err := fc.Backward(r)
	require.NoError(t, err)

	assertGradClose(t, numericGrad(x, f), gx, "input")
	assertGradClose(t, numericGrad(fc.Weight().Values(), f), fc.Weight().Grad(), "weight")
	assertGradClose(t, numericGrad(fc.Bias().Values(), f), fc.Bias().Grad(), "bias")
}
