package onnx

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/born-ml/voxnet/internal/network"
	"github.com/born-ml/voxnet/internal/nn"
)

// Versions written by Export.
const (
	ExportIRVersion = 7
	ExportOpset     = 13
	ProducerName    = "voxnet"
)

// Graph tensor names.
const (
	InputName  = "input"
	OutputName = "logits"
)

// ExportOptions carries model metadata.
type ExportOptions struct {
	ProducerVersion string
	ModelVersion    int64
	DocString       string
	Metadata        map[string]string
}

// Export converts net into an ONNX model.
//
// The graph takes a channels-last [N,D,H,W,C] input and produces [N,classes]
// logits. Batch normalization is exported in inference form, so the model
// normalizes with the running statistics.
func Export(net *network.Network, opts ExportOptions) (*ModelProto, error) {
	cfg := net.Config()
	in := cfg.Input

	conv := net.Conv()
	convCfg := conv.Config()
	convOut, err := conv.OutputShape(in)
	if err != nil {
		return nil, fmt.Errorf("onnx export: %w", err)
	}
	poolCfg := net.Pool().Config()
	pooled := net.PooledShape()

	bn := net.BatchNorm()
	fc := net.Dense()

	convPads := explicitPads([3]int{in[0], in[1], in[2]}, convCfg.Kernel, convCfg.Stride, convCfg.Padding)
	poolPads := explicitPads([3]int{convOut[0], convOut[1], convOut[2]}, poolCfg.Window, poolCfg.Stride, poolCfg.Padding)

	k := convCfg.Kernel
	g := &GraphProto{
		Name: "voxnet",
		Nodes: []NodeProto{
			node("Transpose", "to_ncdhw", []string{InputName}, "x_ncdhw",
				intsAttr("perm", 0, 4, 1, 2, 3)),
			node("Conv", "conv3d", []string{"x_ncdhw", "conv.weight", "conv.bias"}, "conv_out",
				intsAttr("kernel_shape", toInt64(k[:])...),
				intsAttr("strides", toInt64(convCfg.Stride[:])...),
				intsAttr("pads", convPads...)),
			node("BatchNormalization", "batchnorm3d",
				[]string{"conv_out", "bn.gamma", "bn.beta", "bn.running_mean", "bn.running_var"}, "bn_out",
				floatAttr("epsilon", bn.Config().Eps),
				floatAttr("momentum", 1-bn.Config().Momentum)),
			node("Relu", "relu3d", []string{"bn_out"}, "relu_out"),
			node("MaxPool", "maxpool3d", []string{"relu_out"}, "pool_out",
				intsAttr("kernel_shape", toInt64(poolCfg.Window[:])...),
				intsAttr("strides", toInt64(poolCfg.Stride[:])...),
				intsAttr("pads", poolPads...)),
			node("Transpose", "to_ndhwc", []string{"pool_out"}, "pool_ndhwc",
				intsAttr("perm", 0, 2, 3, 4, 1)),
			node("Flatten", "flatten", []string{"pool_ndhwc"}, "features",
				intAttr("axis", 1)),
			node("Gemm", "linear", []string{"features", "fc.weight", "fc.bias"}, OutputName,
				intAttr("transB", 1)),
		},
		Initializers: []TensorProto{
			floatTensor("conv.weight", convWeightOIDHW(conv),
				int64(convCfg.OutChannels), int64(convCfg.InChannels), int64(k[0]), int64(k[1]), int64(k[2])),
			floatTensor("conv.bias", conv.Bias().Values(), int64(convCfg.OutChannels)),
			floatTensor("bn.gamma", bn.Gamma().Values(), int64(cfg.ConvChannels)),
			floatTensor("bn.beta", bn.Beta().Values(), int64(cfg.ConvChannels)),
			floatTensor("bn.running_mean", bn.RunningMean(), int64(cfg.ConvChannels)),
			floatTensor("bn.running_var", bn.RunningVar(), int64(cfg.ConvChannels)),
			floatTensor("fc.weight", fc.Weight().Values(), int64(fc.OutFeatures()), int64(fc.InFeatures())),
			floatTensor("fc.bias", fc.Bias().Values(), int64(fc.OutFeatures())),
		},
		Inputs: []ValueInfoProto{
			valueInfo(InputName, batchDim(), fixedDim(in[0]), fixedDim(in[1]), fixedDim(in[2]), fixedDim(in[3])),
		},
		Outputs: []ValueInfoProto{
			valueInfo(OutputName, batchDim(), fixedDim(cfg.Classes)),
		},
	}

	if got := pooled.NumElements(); got != fc.InFeatures() {
		return nil, fmt.Errorf("onnx export: pooled size %d does not match dense input %d", got, fc.InFeatures())
	}

	model := &ModelProto{
		IRVersion:       ExportIRVersion,
		OpsetImport:     []OperatorSetID{{Version: ExportOpset}},
		ProducerName:    ProducerName,
		ProducerVersion: opts.ProducerVersion,
		ModelVersion:    opts.ModelVersion,
		DocString:       opts.DocString,
		Graph:           g,
	}

	keys := make([]string, 0, len(opts.Metadata))
	for key := range opts.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		model.MetadataProps = append(model.MetadataProps, StringStringEntry{Key: key, Value: opts.Metadata[key]})
	}

	if err := Validate(model); err != nil {
		return nil, fmt.Errorf("onnx export: %w", err)
	}
	return model, nil
}

// explicitPads returns ONNX pads [d0,h0,w0,d1,h1,w1] reproducing the window
// placement of padding. SAME starts every window kernel/2 before its centre.
func explicitPads(in, kernel, stride [3]int, padding nn.Padding) []int64 {
	pads := make([]int64, 6)
	if padding != nn.Same {
		return pads
	}
	for i := range 3 {
		out := nn.OutputSize(in[i], kernel[i], stride[i], padding)
		begin := kernel[i] / 2
		end := max(0, (out-1)*stride[i]+kernel[i]-in[i]-begin)
		pads[i] = int64(begin)
		pads[i+3] = int64(end)
	}
	return pads
}

// convWeightOIDHW reorders the conv kernel from [kd,kh,kw,ic,oc] into the
// [oc,ic,kd,kh,kw] layout ONNX Conv expects.
func convWeightOIDHW(conv *nn.Conv3D) []float32 {
	cfg := conv.Config()
	k := cfg.Kernel
	in, out := cfg.InChannels, cfg.OutChannels
	src := conv.Weight().Values()
	dst := make([]float32, len(src))

	i := 0
	for kd := range k[0] {
		for kh := range k[1] {
			for kw := range k[2] {
				for ic := range in {
					for oc := range out {
						dst[(((oc*in+ic)*k[0]+kd)*k[1]+kh)*k[2]+kw] = src[i]
						i++
					}
				}
			}
		}
	}
	return dst
}

func node(op, name string, inputs []string, output string, attrs ...AttributeProto) NodeProto {
	return NodeProto{
		Name:       name,
		OpType:     op,
		Inputs:     inputs,
		Outputs:    []string{output},
		Attributes: attrs,
	}
}

func intsAttr(name string, vs ...int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInts, Ints: vs}
}

func intAttr(name string, v int64) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoInt, I: v}
}

func floatAttr(name string, v float32) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoFloat, F: v}
}

func floatTensor(name string, values []float32, dims ...int64) TensorProto {
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, RawData: raw}
}

func valueInfo(name string, dims ...DimensionProto) ValueInfoProto {
	return ValueInfoProto{
		Name: name,
		Type: &TypeProto{TensorType: &TensorTypeProto{
			ElemType: TensorProtoFloat,
			Shape:    &TensorShapeProto{Dims: dims},
		}},
	}
}

func batchDim() DimensionProto { return DimensionProto{DimParam: "batch"} }

func fixedDim(n int) DimensionProto { return DimensionProto{DimValue: int64(n)} }

func toInt64(vs []int) []int64 {
	out := make([]int64, len(vs))
	for i, v := range vs {
		out[i] = int64(v)
	}
	return out
}
