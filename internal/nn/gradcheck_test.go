package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

// gradTol is the relative tolerance for float32 layers checked against
// float64 central differences.
const gradTol = 2e-2

// numericGrad differentiates f with respect to the float32 buffer x by
// central differences. x is restored before returning.
func numericGrad(x []float32, f func() float64) []float64 {
	orig := make([]float64, len(x))
	for i, v := range x {
		orig[i] = float64(v)
	}

	grad := fd.Gradient(nil, func(v []float64) float64 {
		for i := range v {
			x[i] = float32(v[i])
		}
		return f()
	}, orig, &fd.Settings{Formula: fd.Central, Step: 1e-2})

	for i, v := range orig {
		x[i] = float32(v)
	}
	return grad
}

// assertGradClose compares an analytic gradient with a numeric one.
func assertGradClose(t *testing.T, want []float64, got []float32, name string) {
	t.Helper()
	require.Len(t, got, len(want), name)
	for i := range want {
		tol := gradTol * math.Max(1, math.Abs(want[i]))
		assert.InDelta(t, want[i], float64(got[i]), tol, "%s[%d]", name, i)
	}
}

// probe returns a fixed random projection r and the scalar L = Σ y·r.
// Its gradient with respect to y is r itself.
func probe(rng *rand.Rand, n int) ([]float32, func(y []float32) float64) {
	r := randomSlice(rng, n)
	return r, func(y []float32) float64 {
		var sum float64
		for i, v := range y {
			sum += float64(v) * float64(r[i])
		}
		return sum
	}
}

func randomSlice(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func randomTensor(t *testing.T, rng *rand.Rand, d, h, w, c int) tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(randomSlice(rng, d*h*w*c), d, h, w, c)
	require.NoError(t, err)
	return x
}

func tensorOf(t *testing.T, data []float32, shape tensor.Shape) tensor.Tensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape[0], shape[1], shape[2], shape[3])
	require.NoError(t, err)
	return x
}
