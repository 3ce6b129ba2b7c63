package main

import (
	"flag"
	"io"

	"github.com/born-ml/voxnet/internal/config"
)

// commonFlags are shared by every subcommand that builds a network.
type commonFlags struct {
	configPath string
	checkpoint string
	workers    int
	logLevel   string
	logFormat  string
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("voxnet "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.checkpoint, "checkpoint", "", "checkpoint file (default from config)")
	fs.IntVar(&c.workers, "workers", 0, "intra-layer workers, 0 for one per core")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&c.logFormat, "log-format", "", "log format: text or json")
}

// load reads the config file, if any, and applies the flags that were set
// explicitly on the command line.
func (c *commonFlags) load(fs *flag.FlagSet) (config.File, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "checkpoint":
			cfg.Train.Checkpoint = c.checkpoint
		case "workers":
			cfg.Model.Workers = c.workers
			cfg.Data.Workers = c.workers
		case "log-level":
			cfg.Log.Level = c.logLevel
		case "log-format":
			cfg.Log.Format = c.logFormat
		}
	})
	return cfg, nil
}
