package main

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"strings"

	"github.com/born-ml/voxnet/internal/onnx"
	"github.com/born-ml/voxnet/internal/parallel"
	"github.com/klauspost/cpuid/v2"
)

func infoCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("info", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if fs.NArg() > 0 {
		for _, path := range fs.Args() {
			if err := modelInfo(stdout, path); err != nil {
				return err
			}
		}
		return nil
	}

	cpu := cpuid.CPU
	fmt.Fprintf(stdout, "voxnet %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(stdout, "CPU:             %s\n", cpu.BrandName)
	fmt.Fprintf(stdout, "Physical cores:  %d\n", cpu.PhysicalCores)
	fmt.Fprintf(stdout, "Logical cores:   %d\n", cpu.LogicalCores)
	fmt.Fprintf(stdout, "Default workers: %d\n", parallel.Workers())

	var features []string
	for _, f := range []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.ASIMD} {
		if cpu.Supports(f) {
			features = append(features, f.String())
		}
	}
	if len(features) == 0 {
		features = append(features, "none detected")
	}
	fmt.Fprintf(stdout, "SIMD:            %s\n", strings.Join(features, " "))
	return nil
}

func modelInfo(w io.Writer, path string) error {
	info, err := onnx.GetModelInfo(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  producer:   %s %s\n", info.ProducerName, info.ProducerVersion)
	fmt.Fprintf(w, "  ir/opset:   %d/%d\n", info.IRVersion, info.OpsetVersion)
	fmt.Fprintf(w, "  inputs:     %s\n", strings.Join(info.InputNames, ", "))
	fmt.Fprintf(w, "  outputs:    %s\n", strings.Join(info.OutputNames, ", "))
	fmt.Fprintf(w, "  nodes:      %s\n", strings.Join(info.OpTypes, " → "))
	fmt.Fprintf(w, "  weights:    %d tensors, %d values\n", info.WeightCount, info.ParamCount)

	keys := make([]string, 0, len(info.Metadata))
	for k := range info.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, info.Metadata[k])
	}
	return nil
}
