package nn

import (
	"math/rand/v2"

	"github.com/chewxy/math32"
)

// XavierBound returns the Glorot uniform bound sqrt(6 / (fanIn + fanOut)).
func XavierBound(fanIn, fanOut int) float32 {
	return math32.Sqrt(6.0 / float32(fanIn+fanOut))
}

// Xavier fills dst with values drawn uniformly from
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))).
//
// This initialization helps maintain variance of activations across layers.
func Xavier(dst []float32, fanIn, fanOut int, rng *rand.Rand) {
	bound := XavierBound(fanIn, fanOut)
	for i := range dst {
		dst[i] = (rng.Float32()*2 - 1) * bound
	}
}

// NewRand returns the deterministic source used for weight initialization.
func NewRand(seed uint64) *rand.Rand {
	//nolint:gosec // Weight initialization is not security-critical.
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
