package nn_test

import (
	"testing"

	"github.com/born-ml/voxnet/nn"
	"github.com/born-ml/voxnet/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicLayers(t *testing.T) {
	rng := nn.NewRand(1)
	conv, err := nn.NewConv3D(nn.Conv3DConfig{
		InChannels:  1,
		OutChannels: 2,
		Kernel:      [3]int{3, 3, 3},
		Stride:      [3]int{1, 1, 1},
		Padding:     nn.Same,
	}, rng)
	require.NoError(t, err)

	bn, err := nn.NewBatchNorm3D(nn.DefaultBatchNorm3DConfig(2))
	require.NoError(t, err)
	pool, err := nn.NewMaxPool3D(nn.MaxPool3DConfig{
		Window: [3]int{2, 2, 2},
		Stride: [3]int{2, 2, 2},
	})
	require.NoError(t, err)

	x := tensor.MustNew(4, 4, 4, 1)
	x.Fill(1)
	x.Set(0, 0, 0, 0, 3)

	y, err := conv.Forward(x)
	require.NoError(t, err)
	y, err = bn.Forward(y, true)
	require.NoError(t, err)
	y, err = nn.NewReLU3D().Forward(y)
	require.NoError(t, err)
	y, err = pool.Forward(y)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewShape(2, 2, 2, 2), y.Shape())

	fc, err := nn.NewLinear(y.Size(), 3, rng)
	require.NoError(t, err)
	logits, err := fc.Forward(y.Flatten())
	require.NoError(t, err)

	loss, err := nn.NewSoftmaxCrossEntropy().Forward(logits, []int{1})
	require.NoError(t, err)
	assert.Greater(t, loss, float32(0))

	layers := []nn.Layer{conv, bn, pool, fc}
	assert.Len(t, layers[0].Parameters(), 2)
	assert.Equal(t, 8, nn.OutputSize(16, 2, 2, nn.Valid))
}
