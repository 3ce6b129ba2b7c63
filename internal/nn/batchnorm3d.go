package nn

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
	"github.com/chewxy/math32"
)

// BatchNorm3D defaults.
const (
	DefaultBatchNormEps      float32 = 1e-5
	DefaultBatchNormMomentum float32 = 0.1
)

// BatchNorm3DConfig describes a BatchNorm3D layer.
type BatchNorm3DConfig struct {
	Channels int
	Eps      float32 // Added to the variance; must be > 0.
	Momentum float32 // Running-stat EMA factor in [0, 1].

	// UseRunningStats makes inference-mode Forward normalize with the running
	// statistics. When false, inference uses the current batch statistics,
	// exactly like training but without touching the running values.
	UseRunningStats bool
}

// DefaultBatchNorm3DConfig returns the config for a layer over channels.
func DefaultBatchNorm3DConfig(channels int) BatchNorm3DConfig {
	return BatchNorm3DConfig{
		Channels: channels,
		Eps:      DefaultBatchNormEps,
		Momentum: DefaultBatchNormMomentum,
	}
}

// Validate checks the config.
func (c BatchNorm3DConfig) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("%w: batchnorm3d: channels=%d must be positive", ErrInvalidConfig, c.Channels)
	}
	if !(c.Eps > 0) {
		return fmt.Errorf("%w: batchnorm3d: eps=%g must be positive", ErrInvalidConfig, c.Eps)
	}
	if !(c.Momentum >= 0 && c.Momentum <= 1) {
		return fmt.Errorf("%w: batchnorm3d: momentum=%g outside [0, 1]", ErrInvalidConfig, c.Momentum)
	}
	return nil
}

// BatchNorm3D normalizes every channel of a D×H×W×C tensor over its N=D*H*W
// voxels:
//
//	x̂ = (x - μ_c) / sqrt(σ²_c + eps)
//	y = γ_c * x̂ + β_c
//
// σ² is the biased (divide by N) variance.
type BatchNorm3D struct {
	cfg BatchNorm3DConfig

	gamma *Parameter // [C], init 1
	beta  *Parameter // [C], init 0

	runningMean []float32 // init 0
	runningVar  []float32 // init 1

	cache *bnCache
	par   parallel.Config
}

// bnCache holds what Backward needs from the last Forward.
type bnCache struct {
	shape      tensor.Shape
	mean       []float32
	variance   []float32
	invStd     []float32
	xhat       []float32
	batchStats bool // false when the running statistics were used
}

// NewBatchNorm3D creates a BatchNorm3D layer.
func NewBatchNorm3D(cfg BatchNorm3DConfig) (*BatchNorm3D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gamma := NewParameter("batchnorm3d.gamma", cfg.Channels)
	for i := range gamma.Values() {
		gamma.Values()[i] = 1
	}
	runningVar := make([]float32, cfg.Channels)
	for i := range runningVar {
		runningVar[i] = 1
	}

	return &BatchNorm3D{
		cfg:         cfg,
		gamma:       gamma,
		beta:        NewParameter("batchnorm3d.beta", cfg.Channels),
		runningMean: make([]float32, cfg.Channels),
		runningVar:  runningVar,
		par:         parallel.DefaultConfig().WithMinChunk(1),
	}, nil
}

// Config returns the layer configuration.
func (bn *BatchNorm3D) Config() BatchNorm3DConfig { return bn.cfg }

// Gamma returns the scale parameter.
func (bn *BatchNorm3D) Gamma() *Parameter { return bn.gamma }

// Beta returns the shift parameter.
func (bn *BatchNorm3D) Beta() *Parameter { return bn.beta }

// Parameters returns [gamma, beta].
func (bn *BatchNorm3D) Parameters() []*Parameter {
	return []*Parameter{bn.gamma, bn.beta}
}

// RunningMean returns the running mean. The slice aliases layer storage.
func (bn *BatchNorm3D) RunningMean() []float32 { return bn.runningMean }

// RunningVar returns the running variance. The slice aliases layer storage.
func (bn *BatchNorm3D) RunningVar() []float32 { return bn.runningVar }

// SetRunningStats overwrites the running statistics.
func (bn *BatchNorm3D) SetRunningStats(mean, variance []float32) error {
	if len(mean) != bn.cfg.Channels || len(variance) != bn.cfg.Channels {
		return fmt.Errorf("%w: batchnorm3d: running stats of length %d/%d, want %d",
			tensor.ErrShapeMismatch, len(mean), len(variance), bn.cfg.Channels)
	}
	copy(bn.runningMean, mean)
	copy(bn.runningVar, variance)
	return nil
}

// SetParallel replaces the parallel execution config.
func (bn *BatchNorm3D) SetParallel(cfg parallel.Config) { bn.par = cfg.WithMinChunk(1) }

// ZeroGrad zeroes the gamma and beta gradients and drops the forward cache.
// Running statistics are kept.
func (bn *BatchNorm3D) ZeroGrad() {
	bn.gamma.ZeroGrad()
	bn.beta.ZeroGrad()
	bn.cache = nil
}

// Forward normalizes x.
//
// With training set, batch statistics are used and folded into the running
// statistics as momentum*batch + (1-momentum)*running.
func (bn *BatchNorm3D) Forward(x tensor.Tensor, training bool) (tensor.Tensor, error) {
	shape := x.Shape()
	if shape.Channels() != bn.cfg.Channels {
		return tensor.Tensor{}, fmt.Errorf("%w: batchnorm3d: input has %d channels, want %d",
			tensor.ErrShapeMismatch, shape.Channels(), bn.cfg.Channels)
	}
	y, err := tensor.NewOf(shape)
	if err != nil {
		return tensor.Tensor{}, err
	}

	C := bn.cfg.Channels
	n := shape.Spatial()
	xd, yd := x.Data(), y.Data()
	gamma, beta := bn.gamma.Values(), bn.beta.Values()

	cache := &bnCache{
		shape:      shape,
		mean:       make([]float32, C),
		variance:   make([]float32, C),
		invStd:     make([]float32, C),
		xhat:       make([]float32, len(xd)),
		batchStats: training || !bn.cfg.UseRunningStats,
	}

	parallel.For(C, func(c int) {
		var mu, v float32
		if cache.batchStats {
			var sum float32
			for i := 0; i < n; i++ {
				sum += xd[i*C+c]
			}
			mu = sum / float32(n)

			var sum2 float32
			for i := 0; i < n; i++ {
				d := xd[i*C+c] - mu
				sum2 += d * d
			}
			v = sum2 / float32(n)
		} else {
			mu, v = bn.runningMean[c], bn.runningVar[c]
		}

		is := 1 / math32.Sqrt(v+bn.cfg.Eps)
		cache.mean[c], cache.variance[c], cache.invStd[c] = mu, v, is

		if training {
			m := bn.cfg.Momentum
			bn.runningMean[c] = m*mu + (1-m)*bn.runningMean[c]
			bn.runningVar[c] = m*v + (1-m)*bn.runningVar[c]
		}

		for i := 0; i < n; i++ {
			idx := i*C + c
			xh := (xd[idx] - mu) * is
			cache.xhat[idx] = xh
			yd[idx] = gamma[c]*xh + beta[c]
		}
	}, bn.par)

	bn.cache = cache
	return y, nil
}

// Backward accumulates gamma/beta gradients and returns the input gradient:
//
//	dβ_c = Σ g
//	dγ_c = Σ g·x̂
//	dx   = (γ_c·invStd_c / N) · (N·g - dβ_c - x̂·dγ_c)
//
// When the last Forward normalized with running statistics, those are
// constants and dx = γ_c·invStd_c·g.
func (bn *BatchNorm3D) Backward(gradOut tensor.Tensor) (tensor.Tensor, error) {
	cache := bn.cache
	if cache == nil {
		return tensor.Tensor{}, fmt.Errorf("batchnorm3d: %w", ErrNoForward)
	}
	if gradOut.Shape() != cache.shape {
		return tensor.Tensor{}, fmt.Errorf("%w: batchnorm3d: gradient shape %s, want %s",
			tensor.ErrShapeMismatch, gradOut.Shape(), cache.shape)
	}
	gradIn, err := tensor.NewOf(cache.shape)
	if err != nil {
		return tensor.Tensor{}, err
	}

	C := bn.cfg.Channels
	n := cache.shape.Spatial()
	N := float32(n)
	gd, dx := gradOut.Data(), gradIn.Data()
	gamma := bn.gamma.Values()
	gGamma, gBeta := bn.gamma.Grad(), bn.beta.Grad()

	parallel.For(C, func(c int) {
		var db, dg float32
		for i := 0; i < n; i++ {
			idx := i*C + c
			db += gd[idx]
			dg += gd[idx] * cache.xhat[idx]
		}
		gBeta[c] += db
		gGamma[c] += dg

		if !cache.batchStats {
			scale := gamma[c] * cache.invStd[c]
			for i := 0; i < n; i++ {
				dx[i*C+c] = scale * gd[i*C+c]
			}
			return
		}

		scale := gamma[c] * cache.invStd[c] / N
		for i := 0; i < n; i++ {
			idx := i*C + c
			dx[idx] = scale * (N*gd[idx] - db - cache.xhat[idx]*dg)
		}
	}, bn.par)

	return gradIn, nil
}

// BatchMean returns a copy of the per-channel mean used by the last Forward,
// or nil before any Forward.
func (bn *BatchNorm3D) BatchMean() []float32 {
	if bn.cache == nil {
		return nil
	}
	return append([]float32(nil), bn.cache.mean...)
}

// BatchVar returns a copy of the per-channel variance used by the last
// Forward, or nil before any Forward.
func (bn *BatchNorm3D) BatchVar() []float32 {
	if bn.cache == nil {
		return nil
	}
	return append([]float32(nil), bn.cache.variance...)
}
