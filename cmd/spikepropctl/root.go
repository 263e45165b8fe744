package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"spikeprop/pkg/spikeprop"
)

var version = "0.1.0"

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	logFormat  string
	logLevel   string

	// flags receives flag values; only flags set on the command line are
	// layered onto cfg.
	flags  Config
	cfg    Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	d := defaultConfig()

	root := &cobra.Command{
		Use:   "spikepropctl",
		Short: "Train and inspect SpikeProp spiking neural networks",
		Long: `spikepropctl trains three-layer spiking networks with the SpikeProp
learning rule, stores the best parameters and run artifacts, and serves
them for inspection.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(a.logFormat, a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			cfg, err := resolveConfig(a.configPath, cmd.Flags(), &a.flags)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger.Debug("configuration resolved", zap.Any("config", cfg))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML run configuration file")
	pf.StringVar(&a.logFormat, "log-format", "console", "log format: console|json")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&a.flags.Store, "store", d.Store, "store backend: memory|sqlite")
	pf.StringVar(&a.flags.DBPath, "db-path", d.DBPath, "sqlite database path")
	pf.StringVar(&a.flags.ArtifactsDir, "artifacts-dir", d.ArtifactsDir, "run artifacts directory")

	root.AddCommand(
		newTrainCmd(a),
		newPredictCmd(a),
		newRunsCmd(a),
		newExportCmd(a),
		newGradCheckCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) client() (*spikeprop.Client, error) {
	return spikeprop.New(spikeprop.Options{
		StoreKind:    a.cfg.Store,
		DBPath:       a.cfg.DBPath,
		ArtifactsDir: a.cfg.ArtifactsDir,
		ExportsDir:   a.cfg.ExportsDir,
		Logger:       a.logger,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
