package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/born-ml/voxnet/internal/onnx"
	"github.com/born-ml/voxnet/internal/serialization"
)

func exportCmd(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", stderr)
	var f commonFlags
	f.register(fs)
	out := fs.String("out", "model.onnx", "output ONNX file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := f.load(fs)
	if err != nil {
		return err
	}
	net, err := loadNetwork(cfg)
	if err != nil {
		return err
	}
	sum, err := serialization.FileChecksum(cfg.Train.Checkpoint)
	if err != nil {
		return err
	}

	model, err := onnx.Export(net, onnx.ExportOptions{
		ProducerVersion: version,
		DocString:       "voxnet volumetric classifier",
		Metadata: map[string]string{
			"checkpoint_sha256": sum,
			"classes":           strconv.Itoa(cfg.Model.Classes),
		},
	})
	if err != nil {
		return err
	}
	if err := onnx.WriteFile(*out, model); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %s (%d nodes, %d parameters)\n", *out, len(model.Graph.Nodes), net.NumParameters())
	return nil
}
