package network

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/optim"
	"github.com/born-ml/voxnet/internal/tensor"
)

// Config holds the hyperparameters of the fixed
// Conv3D → BatchNorm3D → ReLU3D → MaxPool3D → Linear pipeline.
type Config struct {
	Input tensor.Shape // D×H×W×C of one example

	ConvChannels int
	ConvKernel   [3]int
	ConvStride   [3]int
	ConvPadding  nn.Padding

	BatchNormEps             float32
	BatchNormMomentum        float32
	BatchNormUseRunningStats bool

	PoolWindow  [3]int
	PoolStride  [3]int
	PoolPadding nn.Padding

	Classes int

	LR       float32
	Momentum float32

	Seed    uint64 // weight initialization seed
	Workers int    // intra-layer workers; 0 means one per physical core
}

// DefaultConfig returns the reference topology: a 32×32×32×1 occupancy grid,
// 16 conv channels with a 3³ SAME kernel, 2³ VALID pooling and 10 classes,
// trained with SGD (lr 0.01, momentum 0.9).
func DefaultConfig() Config {
	sgd := optim.DefaultSGDConfig()
	return Config{
		Input: tensor.NewShape(32, 32, 32, 1),

		ConvChannels: 16,
		ConvKernel:   [3]int{3, 3, 3},
		ConvStride:   [3]int{1, 1, 1},
		ConvPadding:  nn.Same,

		BatchNormEps:      nn.DefaultBatchNormEps,
		BatchNormMomentum: nn.DefaultBatchNormMomentum,

		PoolWindow:  [3]int{2, 2, 2},
		PoolStride:  [3]int{2, 2, 2},
		PoolPadding: nn.Valid,

		Classes: 10,

		LR:       sgd.LR,
		Momentum: sgd.Momentum,

		Seed: 42,
	}
}

// Conv3D returns the convolution config.
func (c Config) Conv3D() nn.Conv3DConfig {
	return nn.Conv3DConfig{
		InChannels:  c.Input.Channels(),
		OutChannels: c.ConvChannels,
		Kernel:      c.ConvKernel,
		Stride:      c.ConvStride,
		Padding:     c.ConvPadding,
	}
}

// BatchNorm3D returns the batch-norm config.
func (c Config) BatchNorm3D() nn.BatchNorm3DConfig {
	return nn.BatchNorm3DConfig{
		Channels:        c.ConvChannels,
		Eps:             c.BatchNormEps,
		Momentum:        c.BatchNormMomentum,
		UseRunningStats: c.BatchNormUseRunningStats,
	}
}

// MaxPool3D returns the pooling config.
func (c Config) MaxPool3D() nn.MaxPool3DConfig {
	return nn.MaxPool3DConfig{
		Window:  c.PoolWindow,
		Stride:  c.PoolStride,
		Padding: c.PoolPadding,
	}
}

// SGD returns the optimizer config.
func (c Config) SGD() optim.SGDConfig {
	return optim.SGDConfig{LR: c.LR, Momentum: c.Momentum}
}

// Validate checks every section of the config.
func (c Config) Validate() error {
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("network: input: %w", err)
	}
	if c.Classes <= 0 {
		return fmt.Errorf("%w: network: classes=%d must be positive", nn.ErrInvalidConfig, c.Classes)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: network: workers=%d must not be negative", nn.ErrInvalidConfig, c.Workers)
	}
	if err := c.Conv3D().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := c.BatchNorm3D().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := c.MaxPool3D().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if err := c.SGD().Validate(); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	return nil
}
