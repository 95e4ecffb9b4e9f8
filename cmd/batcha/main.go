// batcha inspects and exports batcha container files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtxerr/batcha/internal/config"
	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/datastore"
	"github.com/xtxerr/batcha/internal/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

// app carries state shared by every command.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "batcha",
		Short:        "Inspect and export batcha container files",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: text, json, pretty (overrides config)")

	root.AddCommand(
		newTreeCmd(a),
		newAttrsCmd(a),
		newExportCmd(a),
		newStatsCmd(a),
	)
	return root
}

// setup loads the configuration and sets up logging.
func (a *app) setup() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
		if err != nil {
			return err
		}
	} else {
		a.cfg = config.DefaultConfig()
		if err := a.cfg.ApplyEnv(os.LookupEnv); err != nil {
			return err
		}
	}

	// CLI overrides
	if a.logLevel != "" {
		a.cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		a.cfg.Logging.Format = a.logFormat
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(a.cfg.Logging.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(a.cfg.Logging.Format)
	if err != nil {
		return err
	}
	logging.Init(level, format)
	return nil
}

// open opens filename as a datastore session. Read-only access is used when
// requested by the command or forced by the configuration.
func (a *app) open(filename string, readonly bool) (*datastore.Session, error) {
	compression, err := container.ParseCompression(a.cfg.Arrays.Compression)
	if err != nil {
		return nil, err
	}
	s, err := datastore.Open(filename, readonly || a.cfg.Container.ReadOnly,
		datastore.WithTitle(a.cfg.Container.Title),
		datastore.WithCompression(compression, a.cfg.Arrays.Level),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	return s, nil
}

// lookup resolves path in the session's file.
func lookup(cmd *cobra.Command, s *datastore.Session, path string) (container.Node, error) {
	var n container.Node
	err := s.File().View(cmd.Context(), func(tx *container.Txn) error {
		var err error
		n, err = tx.Lookup(path)
		return err
	})
	return n, err
}
