package onnx

import (
	"errors"
	"fmt"
)

// ErrInvalidGraph is returned by Validate for graphs that cannot be executed.
var ErrInvalidGraph = errors.New("onnx: invalid graph")

// ModelInfo contains basic information about an ONNX model without fully loading it.
type ModelInfo struct {
	IRVersion       int64
	OpsetVersion    int64
	ProducerName    string
	ProducerVersion string
	InputNames      []string
	OutputNames     []string
	OpTypes         []string // in execution order
	NodeCount       int
	WeightCount     int
	ParamCount      int64
	Metadata        map[string]string
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(path string) (*ModelInfo, error) {
	proto, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Info(proto), nil
}

// Info summarizes a parsed model.
func Info(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		Metadata:        make(map[string]string, len(proto.MetadataProps)),
	}

	for _, opset := range proto.OpsetImport {
		if opset.Domain == "" || opset.Domain == "ai.onnx" {
			info.OpsetVersion = opset.Version
			break
		}
	}
	for _, e := range proto.MetadataProps {
		info.Metadata[e.Key] = e.Value
	}

	if proto.Graph == nil {
		return info
	}

	// Inputs exclude initializers; older exporters list weights as inputs.
	initNames := make(map[string]bool)
	for i := range proto.Graph.Initializers {
		init := &proto.Graph.Initializers[i]
		initNames[init.Name] = true
		info.ParamCount += init.NumElements()
	}
	for i := range proto.Graph.Inputs {
		if !initNames[proto.Graph.Inputs[i].Name] {
			info.InputNames = append(info.InputNames, proto.Graph.Inputs[i].Name)
		}
	}
	for _, output := range proto.Graph.Outputs {
		info.OutputNames = append(info.OutputNames, output.Name)
	}
	for _, idx := range topologicalSort(proto.Graph.Nodes) {
		info.OpTypes = append(info.OpTypes, proto.Graph.Nodes[idx].OpType)
	}

	info.NodeCount = len(proto.Graph.Nodes)
	info.WeightCount = len(proto.Graph.Initializers)
	return info
}

// Validate checks that every node input is a graph input, an initializer or
// the output of another node, that the graph is acyclic, and that every
// graph output is produced.
func Validate(proto *ModelProto) error {
	g := proto.Graph
	if g == nil {
		return fmt.Errorf("%w: model has no graph", ErrInvalidGraph)
	}

	available := make(map[string]bool)
	for i := range g.Inputs {
		available[g.Inputs[i].Name] = true
	}
	for i := range g.Initializers {
		init := &g.Initializers[i]
		if init.DataType == TensorProtoFloat && len(init.RawData) > 0 && int64(len(init.RawData)) != 4*init.NumElements() {
			return fmt.Errorf("%w: initializer %q has %d bytes for dims %v",
				ErrInvalidGraph, init.Name, len(init.RawData), init.Dims)
		}
		available[init.Name] = true
	}

	producers := make(map[string]bool)
	for i := range g.Nodes {
		for _, out := range g.Nodes[i].Outputs {
			if producers[out] || available[out] {
				return fmt.Errorf("%w: %q is produced more than once", ErrInvalidGraph, out)
			}
			producers[out] = true
		}
	}

	for _, idx := range topologicalSort(g.Nodes) {
		n := &g.Nodes[idx]
		for _, in := range n.Inputs {
			if in == "" {
				continue // optional input omitted
			}
			if !available[in] {
				return fmt.Errorf("%w: node %q (%s) reads %q before it is produced",
					ErrInvalidGraph, n.Name, n.OpType, in)
			}
		}
		for _, out := range n.Outputs {
			available[out] = true
		}
	}

	for i := range g.Outputs {
		if !available[g.Outputs[i].Name] {
			return fmt.Errorf("%w: output %q is never produced", ErrInvalidGraph, g.Outputs[i].Name)
		}
	}
	return nil
}

// topologicalSort returns node indices so that every node follows its
// producers. Nodes on a cycle are emitted once, after which Validate reports
// their unresolved input.
func topologicalSort(nodes []NodeProto) []int {
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			outputToNode[output] = i
		}
	}

	visited := make([]bool, len(nodes))
	order := make([]int, 0, len(nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		// Visit dependencies first
		for _, input := range nodes[i].Inputs {
			if depIdx, ok := outputToNode[input]; ok {
				visit(depIdx)
			}
		}

		order = append(order, i)
	}

	for i := range nodes {
		visit(i)
	}
	return order
}
