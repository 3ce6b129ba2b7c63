package nn

import (
	"testing"

	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBatchNorm(t *testing.T, cfg BatchNorm3DConfig) *BatchNorm3D {
	t.Helper()
	bn, err := NewBatchNorm3D(cfg)
	require.NoError(t, err)
	return bn
}

func TestBatchNorm3D_ConstantInputMomentumOne(t *testing.T) {
	cfg := DefaultBatchNorm3DConfig(1)
	cfg.Momentum = 1
	bn := newTestBatchNorm(t, cfg)

	x := tensor.MustNew(1, 2, 2, 1)
	x.Fill(2)

	y, err := bn.Forward(x, true)
	require.NoError(t, err)
	for _, v := range y.Data() {
		assert.InDelta(t, 0, v, 1e-6)
	}
	assert.InDelta(t, 2, bn.RunningMean()[0], 1e-6)
	assert.InDelta(t, 0, bn.RunningVar()[0], 1e-6)

	g := tensor.MustNew(1, 2, 2, 1)
	g.Fill(1)
	gx, err := bn.Backward(g)
	require.NoError(t, err)

	assert.InDelta(t, 0, bn.Gamma().Grad()[0], 1e-6)
	assert.InDelta(t, 4, bn.Beta().Grad()[0], 1e-6)
	for _, v := range gx.Data() {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestBatchNorm3D_Defaults(t *testing.T) {
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(3))

	assert.Equal(t, float32(1e-5), bn.Config().Eps)
	assert.Equal(t, float32(0.1), bn.Config().Momentum)
	assert.Equal(t, []float32{1, 1, 1}, bn.Gamma().Values())
	assert.Equal(t, []float32{0, 0, 0}, bn.Beta().Values())
	assert.Equal(t, []float32{0, 0, 0}, bn.RunningMean())
	assert.Equal(t, []float32{1, 1, 1}, bn.RunningVar())
}

func TestBatchNorm3D_InvalidConfig(t *testing.T) {
	for name, cfg := range map[string]BatchNorm3DConfig{
		"channels":      {Channels: 0, Eps: 1e-5, Momentum: 0.1},
		"eps":           {Channels: 1, Eps: 0, Momentum: 0.1},
		"momentum high": {Channels: 1, Eps: 1e-5, Momentum: 1.5},
		"momentum low":  {Channels: 1, Eps: 1e-5, Momentum: -0.1},
	} {
		_, err := NewBatchNorm3D(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, name)
	}
}

func TestBatchNorm3D_RunningStatsEMA(t *testing.T) {
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(2))

	// Channel 0 holds {1, 3}, channel 1 holds {10, 10}.
	x := tensorOf(t, []float32{1, 10, 3, 10}, tensor.NewShape(1, 1, 2, 2))
	_, err := bn.Forward(x, true)
	require.NoError(t, err)

	// mean: 0.1*batch + 0.9*0; var: 0.1*batch + 0.9*1.
	assert.InDelta(t, 0.2, bn.RunningMean()[0], 1e-6)
	assert.InDelta(t, 1.0, bn.RunningMean()[1], 1e-6)
	assert.InDelta(t, 0.1*1+0.9, bn.RunningVar()[0], 1e-6)
	assert.InDelta(t, 0.9, bn.RunningVar()[1], 1e-6)
	assert.Equal(t, []float32{2, 10}, bn.BatchMean())
	assert.Equal(t, []float32{1, 0}, bn.BatchVar())
}

func TestBatchNorm3D_InferenceUsesBatchStats(t *testing.T) {
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(1))
	x := tensorOf(t, []float32{1, 2, 3, 4}, tensor.NewShape(1, 2, 2, 1))

	train, err := bn.Forward(x, true)
	require.NoError(t, err)
	mean := append([]float32(nil), bn.RunningMean()...)
	variance := append([]float32(nil), bn.RunningVar()...)

	infer, err := bn.Forward(x, false)
	require.NoError(t, err)

	assert.Equal(t, train.Data(), infer.Data(), "inference normalizes with batch statistics")
	assert.Equal(t, mean, bn.RunningMean(), "inference must not touch running mean")
	assert.Equal(t, variance, bn.RunningVar(), "inference must not touch running var")
}

func TestBatchNorm3D_InferenceUsesRunningStatsWhenEnabled(t *testing.T) {
	cfg := DefaultBatchNorm3DConfig(1)
	cfg.UseRunningStats = true
	bn := newTestBatchNorm(t, cfg)
	require.NoError(t, bn.SetRunningStats([]float32{1}, []float32{4}))

	x := tensorOf(t, []float32{1, 3, 5, 7}, tensor.NewShape(1, 1, 4, 1))
	y, err := bn.Forward(x, false)
	require.NoError(t, err)

	// (x - 1) / sqrt(4 + eps)
	want := []float32{0, 1, 2, 3}
	for i, v := range y.Data() {
		assert.InDelta(t, want[i], v, 1e-4)
	}

	g := tensor.MustNew(1, 1, 4, 1)
	g.Fill(1)
	gx, err := bn.Backward(g)
	require.NoError(t, err)
	for _, v := range gx.Data() {
		assert.InDelta(t, 0.5, v, 1e-4)
	}

	err = bn.SetRunningStats([]float32{1, 2}, []float32{1})
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

func TestBatchNorm3D_GradientCheck(t *testing.T) {
	rng := NewRand(21)
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(3))
	copy(bn.Gamma().Values(), []float32{1.5, 0.7, -1.2})
	copy(bn.Beta().Values(), []float32{0.1, -0.3, 0.2})

	x := randomTensor(t, rng, 2, 3, 2, 3)
	r, loss := probe(rng, x.Size())

	f := func() float64 {
		y, err := bn.Forward(x, true)
		require.NoError(t, err)
		return loss(y.Data())
	}

	_, err := bn.Forward(x, true)
	require.NoError(t, err)
	gx, err := bn.Backward(tensorOf(t, r, x.Shape()))
	require.NoError(t, err)
	gGamma := append([]float32(nil), bn.Gamma().Grad()...)
	gBeta := append([]float32(nil), bn.Beta().Grad()...)

	assertGradClose(t, numericGrad(x.Data(), f), gx.Data(), "input")
	assertGradClose(t, numericGrad(bn.Gamma().Values(), f), gGamma, "gamma")
	assertGradClose(t, numericGrad(bn.Beta().Values(), f), gBeta, "beta")
}

func TestBatchNorm3D_BackwardAccumulates(t *testing.T) {
	rng := NewRand(8)
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(2))
	x := randomTensor(t, rng, 2, 2, 2, 2)
	g := randomTensor(t, rng, 2, 2, 2, 2)

	_, err := bn.Forward(x, true)
	require.NoError(t, err)
	_, err = bn.Backward(g)
	require.NoError(t, err)
	once := append([]float32(nil), bn.Beta().Grad()...)

	_, err = bn.Backward(g)
	require.NoError(t, err)
	for i, v := range bn.Beta().Grad() {
		assert.InDelta(t, 2*once[i], v, 1e-5)
	}
}

func TestBatchNorm3D_Errors(t *testing.T) {
	bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(2))

	_, err := bn.Backward(tensor.MustNew(1, 1, 1, 2))
	require.ErrorIs(t, err, ErrNoForward)

	_, err = bn.Forward(tensor.MustNew(1, 1, 1, 3), true)
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = bn.Forward(tensor.MustNew(2, 1, 1, 2), true)
	require.NoError(t, err)
	_, err = bn.Backward(tensor.MustNew(1, 1, 1, 2))
	require.ErrorIs(t, err, tensor.ErrShapeMismatch)

	bn.ZeroGrad()
	assert.Nil(t, bn.BatchMean())
	_, err = bn.Backward(tensor.MustNew(2, 1, 1, 2))
	require.ErrorIs(t, err, ErrNoForward, "ZeroGrad drops the forward cache")
}

func TestBatchNorm3D_DeterministicAcrossWorkers(t *testing.T) {
	rng := NewRand(4)
	x := randomTensor(t, rng, 4, 4, 4, 8)
	g := randomTensor(t, rng, 4, 4, 4, 8)

	run := func(par parallel.Config) ([]float32, []float32) {
		bn := newTestBatchNorm(t, DefaultBatchNorm3DConfig(8))
		bn.SetParallel(par)
		y, err := bn.Forward(x, true)
		require.NoError(t, err)
		gx, err := bn.Backward(g)
		require.NoError(t, err)
		return y.Data(), gx.Data()
	}

	ys, gs := run(parallel.Sequential())
	yp, gp := run(parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})
	assert.Equal(t, ys, yp)
	assert.Equal(t, gs, gp)
}
