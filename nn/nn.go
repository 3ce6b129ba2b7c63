// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the voxnet layers, loss and parameter types.
//
// # Overview
//
// This package contains:
//   - Layers: Conv3D, BatchNorm3D, ReLU3D, MaxPool3D, Linear
//   - Loss: SoftmaxCrossEntropy
//   - Utilities: Parameter, Layer interface, Xavier initialization
//
// Every layer computes its own backward pass. Backward accumulates into
// parameter gradients; call ZeroGrad before each step.
//
// # Basic Usage
//
//	rng := nn.NewRand(42)
//	conv, err := nn.NewConv3D(nn.Conv3DConfig{
//	    InChannels:  1,
//	    OutChannels: 16,
//	    Kernel:      [3]int{3, 3, 3},
//	    Stride:      [3]int{1, 1, 1},
//	    Padding:     nn.Same,
//	}, rng)
//	if err != nil {
//	    return err
//	}
//	y, err := conv.Forward(x)
package nn

import (
	"math/rand/v2"

	"github.com/born-ml/voxnet/internal/nn"
)

// Errors returned by layers.
var (
	ErrInvalidConfig = nn.ErrInvalidConfig
	ErrNoForward     = nn.ErrNoForward
)

// Layer is implemented by every layer.
type Layer = nn.Layer

// Parameter is a learnable buffer with its gradient accumulator.
type Parameter = nn.Parameter

// Padding selects how windows are placed at the borders.
type Padding = nn.Padding

// Padding modes.
const (
	Valid = nn.Valid
	Same  = nn.Same
)

// ParsePadding parses "valid" or "same".
func ParsePadding(s string) (Padding, error) { return nn.ParsePadding(s) }

// OutputSize returns the output extent of one windowed dimension.
func OutputSize(in, kernel, stride int, padding Padding) int {
	return nn.OutputSize(in, kernel, stride, padding)
}

// Conv3D

// Conv3DConfig configures a Conv3D layer.
type Conv3DConfig = nn.Conv3DConfig

// Conv3D is a 3D convolution over channels-last volumes.
type Conv3D = nn.Conv3D

// NewConv3D creates a Conv3D layer with Xavier-initialized weights.
func NewConv3D(cfg Conv3DConfig, rng *rand.Rand) (*Conv3D, error) { return nn.NewConv3D(cfg, rng) }

// BatchNorm3D

// BatchNorm3DConfig configures a BatchNorm3D layer.
type BatchNorm3DConfig = nn.BatchNorm3DConfig

// BatchNorm3D normalizes each channel over the spatial extent.
type BatchNorm3D = nn.BatchNorm3D

// DefaultBatchNorm3DConfig returns eps 1e-5 and momentum 0.1 for channels.
func DefaultBatchNorm3DConfig(channels int) BatchNorm3DConfig {
	return nn.DefaultBatchNorm3DConfig(channels)
}

// NewBatchNorm3D creates a BatchNorm3D layer.
func NewBatchNorm3D(cfg BatchNorm3DConfig) (*BatchNorm3D, error) { return nn.NewBatchNorm3D(cfg) }

// ReLU3D

// ReLU3D is the element-wise rectifier.
type ReLU3D = nn.ReLU3D

// NewReLU3D creates a ReLU3D layer.
func NewReLU3D() *ReLU3D { return nn.NewReLU3D() }

// MaxPool3D

// MaxPool3DConfig configures a MaxPool3D layer.
type MaxPool3DConfig = nn.MaxPool3DConfig

// MaxPool3D takes the maximum of each window per channel.
type MaxPool3D = nn.MaxPool3D

// NewMaxPool3D creates a MaxPool3D layer.
func NewMaxPool3D(cfg MaxPool3DConfig) (*MaxPool3D, error) { return nn.NewMaxPool3D(cfg) }

// Linear

// Linear is a fully connected layer.
type Linear = nn.Linear

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) (*Linear, error) {
	return nn.NewLinear(inFeatures, outFeatures, rng)
}

// Loss

// SoftmaxCrossEntropy is the mean softmax cross-entropy over a batch of logits.
type SoftmaxCrossEntropy = nn.SoftmaxCrossEntropy

// NewSoftmaxCrossEntropy creates the loss.
func NewSoftmaxCrossEntropy() *SoftmaxCrossEntropy { return nn.NewSoftmaxCrossEntropy() }

// Softmax returns the softmax of logits.
func Softmax(logits []float32) []float32 { return nn.Softmax(logits) }

// Argmax returns the index of the first maximum, or -1 for an empty slice.
func Argmax(values []float32) int { return nn.Argmax(values) }

// Initialization

// NewRand returns a seeded generator for deterministic initialization.
func NewRand(seed uint64) *rand.Rand { return nn.NewRand(seed) }

// Xavier fills dst uniformly in ±sqrt(6/(fanIn+fanOut)).
func Xavier(dst []float32, fanIn, fanOut int, rng *rand.Rand) { nn.Xavier(dst, fanIn, fanOut, rng) }
