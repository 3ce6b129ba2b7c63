package tensor_test

import (
	"testing"

	"github.com/born-ml/voxnet/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicAPI(t *testing.T) {
	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, tensor.NewShape(2, 2, 2, 1), x.Shape())
	assert.Equal(t, float32(6), x.At(1, 0, 1, 0))

	require.NoError(t, x.Reshape(1, 1, 8, 1))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, x.Flatten())
	require.ErrorIs(t, x.Reshape(3, 1, 1, 1), tensor.ErrShapeMismatch)

	_, err = tensor.New(0, 1, 1, 1)
	require.ErrorIs(t, err, tensor.ErrInvalidShape)
}
