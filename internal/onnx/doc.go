// Package onnx exports trained voxnet networks as ONNX models.
//
// ONNX (Open Neural Network Exchange) is an open format for representing deep learning models.
// This package builds the graph for the fixed voxnet topology and encodes it
// with the protobuf wire primitives from google.golang.org/protobuf/encoding/protowire.
// A matching decoder reads the same subset of ONNX back, which is what the
// CLI uses to summarize exported files.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - GraphProto: Computation graph with nodes, inputs, outputs, and initializers
//   - NodeProto: Single operation in the graph (e.g., Conv, Gemm, Relu)
//   - TensorProto: Weight/initializer tensor with data and shape
//   - ValueInfoProto: Input/output tensor type information
//
// Exported graph (channels-last input, as produced by the dataset loader):
//
//	input [N,D,H,W,C]
//	  → Transpose(0,4,1,2,3) → Conv → BatchNormalization → Relu → MaxPool
//	  → Transpose(0,2,3,4,1) → Flatten → Gemm(transB=1) → logits [N,classes]
//
// Example usage:
//
//	model, err := onnx.Export(net, onnx.ExportOptions{ProducerVersion: version})
//	if err != nil {
//	    return err
//	}
//	if err := onnx.WriteFile("model.onnx", model); err != nil {
//	    return err
//	}
package onnx
