// Package main provides the voxnet CLI.
//
// Usage:
//
//	voxnet train   [-config run.yaml] [-data dir] [-epochs n] ...
//	voxnet infer   [-config run.yaml] -checkpoint ckpt.bin file.ply...
//	voxnet export  [-config run.yaml] -checkpoint ckpt.bin -out model.onnx
//	voxnet info    [model.onnx]
//	voxnet version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

const version = "v0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "train":
		err = trainCmd(ctx, args[1:], stdout, stderr)
	case "infer":
		err = inferCmd(args[1:], stdout, stderr)
	case "export":
		err = exportCmd(args[1:], stdout, stderr)
	case "info":
		err = infoCmd(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "voxnet %s\n", version)
	case "help", "-h", "-help", "--help":
		usage(stdout)
	default:
		fmt.Fprintf(stderr, "voxnet: unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	default:
		fmt.Fprintf(stderr, "voxnet %s: %v\n", args[0], err)
		return 1
	}
}

// errUsage marks command-line mistakes already reported by the flag set.
var errUsage = errors.New("usage")

func usage(w io.Writer) {
	fmt.Fprintf(w, "voxnet %s - volumetric CNN training\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  train      Train on a directory of PLY samples")
	fmt.Fprintln(w, "  infer      Classify PLY files with a checkpoint")
	fmt.Fprintln(w, "  export     Write a checkpoint as an ONNX model")
	fmt.Fprintln(w, "  info       Show CPU features, or summarize an ONNX model")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "\nRun 'voxnet <command> -h' for command flags.")
}

// parseFlags parses args and maps flag errors to errUsage.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}
