// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides the voxnet optimizers.
//
// SGD updates each registered parameter with classical momentum:
//
//	velocity = momentum * velocity - lr * gradient
//	param    = param + velocity
//
// Example:
//
//	opt, err := optim.NewSGD(optim.DefaultSGDConfig())
//	if err != nil {
//	    return err
//	}
//	for _, p := range layer.Parameters() {
//	    if err := opt.AddParameter(p); err != nil {
//	        return err
//	    }
//	}
//	opt.Step()
package optim

import (
	"github.com/born-ml/voxnet/internal/optim"
)

// ErrInvalidConfig is returned for invalid hyperparameters.
var ErrInvalidConfig = optim.ErrInvalidConfig

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// SGD is stochastic gradient descent with momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for the SGD optimizer.
type SGDConfig = optim.SGDConfig

// DefaultSGDConfig returns lr 0.01 and momentum 0.9.
func DefaultSGDConfig() SGDConfig { return optim.DefaultSGDConfig() }

// NewSGD creates an SGD optimizer with no registered parameters.
func NewSGD(config SGDConfig) (*SGD, error) { return optim.NewSGD(config) }
