// Package network wires the voxnet primitives into one trainable pipeline:
//
//	input → Conv3D → BatchNorm3D → ReLU3D → MaxPool3D → flatten → Linear → logits
//
// with SoftmaxCrossEntropy as the loss and momentum SGD as the optimizer.
//
// A Network is used by one caller at a time. Forward keeps every intermediate
// activation so that Backward can run the layers in reverse.
package network

import (
	"fmt"

	"github.com/born-ml/voxnet/internal/nn"
	"github.com/born-ml/voxnet/internal/optim"
	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/born-ml/voxnet/internal/tensor"
)

// Network is the fixed volumetric classifier.
type Network struct {
	cfg Config

	conv *nn.Conv3D
	bn   *nn.BatchNorm3D
	relu *nn.ReLU3D
	pool *nn.MaxPool3D
	fc   *nn.Linear
	loss *nn.SoftmaxCrossEntropy
	opt  *optim.SGD

	poolShape tensor.Shape

	// Activations of the last Forward.
	input   tensor.Tensor
	convOut tensor.Tensor
	bnOut   tensor.Tensor
	reluOut tensor.Tensor
	poolOut tensor.Tensor
	logits  []float32

	hasLoss bool
}

// New builds a network and registers every learnable parameter with the
// optimizer in checkpoint order: conv weight, conv bias, bn gamma, bn beta,
// dense weight, dense bias.
//
// The dense layer's input width is derived from cfg.Input through the conv and
// pool output-size rules.
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := nn.NewRand(cfg.Seed)

	conv, err := nn.NewConv3D(cfg.Conv3D(), rng)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	bn, err := nn.NewBatchNorm3D(cfg.BatchNorm3D())
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	pool, err := nn.NewMaxPool3D(cfg.MaxPool3D())
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	convShape, err := conv.OutputShape(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	poolShape, err := pool.OutputShape(convShape)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	fc, err := nn.NewLinear(poolShape.NumElements(), cfg.Classes, rng)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	opt, err := optim.NewSGD(cfg.SGD())
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	n := &Network{
		cfg:       cfg,
		conv:      conv,
		bn:        bn,
		relu:      nn.NewReLU3D(),
		pool:      pool,
		fc:        fc,
		loss:      nn.NewSoftmaxCrossEntropy(),
		opt:       opt,
		poolShape: poolShape,
	}

	for _, p := range n.Parameters() {
		if err := opt.AddParameter(p); err != nil {
			return nil, fmt.Errorf("network: %w", err)
		}
	}

	if cfg.Workers > 0 {
		par := parallel.DefaultConfig().WithWorkers(cfg.Workers)
		conv.SetParallel(par)
		bn.SetParallel(par)
		pool.SetParallel(par)
	}

	return n, nil
}

// Forward runs one example through the pipeline and returns the logits.
//
// training selects batch-norm training mode (running statistics updated).
// The input shape must equal Config.Input.
func (n *Network) Forward(input tensor.Tensor, training bool) ([]float32, error) {
	if input.Shape() != n.cfg.Input {
		return nil, fmt.Errorf("%w: network: input %s, want %s",
			tensor.ErrShapeMismatch, input.Shape(), n.cfg.Input)
	}

	n.input = input.Clone()
	n.logits = nil
	n.hasLoss = false

	var err error
	if n.convOut, err = n.conv.Forward(n.input); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if n.bnOut, err = n.bn.Forward(n.convOut, training); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if n.reluOut, err = n.relu.Forward(n.bnOut); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	if n.poolOut, err = n.pool.Forward(n.reluOut); err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	logits, err := n.fc.Forward(n.poolOut.Data())
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}

	n.logits = logits
	return append([]float32(nil), logits...), nil
}

// ComputeLoss evaluates the softmax cross-entropy of the last logits.
func (n *Network) ComputeLoss(labels []int) (float32, error) {
	if n.logits == nil {
		return 0, fmt.Errorf("network: loss: %w", nn.ErrNoForward)
	}
	if len(labels)*n.cfg.Classes != len(n.logits) {
		return 0, fmt.Errorf("%w: network: %d labels for %d logits of %d classes",
			tensor.ErrShapeMismatch, len(labels), len(n.logits), n.cfg.Classes)
	}
	loss, err := n.loss.Forward(n.logits, labels)
	if err != nil {
		return 0, fmt.Errorf("network: %w", err)
	}
	n.hasLoss = true
	return loss, nil
}

// Backward propagates the loss gradient through every layer in reverse,
// adding into the parameter gradients.
//
// Requires Forward followed by ComputeLoss.
func (n *Network) Backward() error {
	if !n.hasLoss {
		return fmt.Errorf("network: backward: %w", nn.ErrNoForward)
	}

	gradLogits, err := n.loss.Backward()
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	gradFlat, err := n.fc.Backward(gradLogits)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	gradPool, err := tensor.FromSlice(gradFlat, n.poolShape[0], n.poolShape[1], n.poolShape[2], n.poolShape[3])
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	gradRelu, err := n.pool.Backward(gradPool)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	gradBN, err := n.relu.Backward(gradRelu)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	gradConv, err := n.bn.Backward(gradBN)
	if err != nil {
		return fmt.Errorf("network: %w", err)
	}
	if _, err := n.conv.Backward(n.input, gradConv); err != nil {
		return fmt.Errorf("network: %w", err)
	}
	return nil
}

// Optimize applies one SGD step with the accumulated gradients.
func (n *Network) Optimize() {
	n.opt.Step()
}

// ZeroGrad zeroes every gradient and drops the per-call layer caches.
// Parameter values, running statistics and velocities are kept.
func (n *Network) ZeroGrad() {
	for _, l := range n.layers() {
		l.ZeroGrad()
	}
	n.opt.ZeroGrad()
}

// Predict classifies one example in inference mode.
func (n *Network) Predict(input tensor.Tensor) (int, []float32, error) {
	logits, err := n.Forward(input, false)
	if err != nil {
		return 0, nil, err
	}
	probs := nn.Softmax(logits)
	return nn.Argmax(probs), probs, nil
}

func (n *Network) layers() []nn.Layer {
	return []nn.Layer{n.conv, n.bn, n.relu, n.pool, n.fc}
}

// Parameters returns every learnable parameter in checkpoint order.
func (n *Network) Parameters() []*nn.Parameter {
	var params []*nn.Parameter
	for _, l := range n.layers() {
		params = append(params, l.Parameters()...)
	}
	return params
}

// NumParameters returns the total number of learnable values.
func (n *Network) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Len()
	}
	return total
}

// Config returns the network configuration.
func (n *Network) Config() Config { return n.cfg }

// Conv returns the convolution layer.
func (n *Network) Conv() *nn.Conv3D { return n.conv }

// BatchNorm returns the batch-norm layer.
func (n *Network) BatchNorm() *nn.BatchNorm3D { return n.bn }

// Pool returns the pooling layer.
func (n *Network) Pool() *nn.MaxPool3D { return n.pool }

// Dense returns the fully connected layer.
func (n *Network) Dense() *nn.Linear { return n.fc }

// Optimizer returns the SGD optimizer.
func (n *Network) Optimizer() *optim.SGD { return n.opt }

// PooledShape returns the shape fed (flattened) into the dense layer.
func (n *Network) PooledShape() tensor.Shape { return n.poolShape }
