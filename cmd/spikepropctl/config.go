package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"spikeprop/internal/storage"
	"spikeprop/pkg/spikeprop"
)

// Config is the run configuration. Values are layered defaults, then the
// YAML file given with --config, then explicitly set flags.
type Config struct {
	Dataset      string  `yaml:"dataset" validate:"required"`
	Hidden       int     `yaml:"hidden" validate:"gte=1"`
	Trials       int     `yaml:"trials" validate:"gte=1"`
	Epochs       int     `yaml:"epochs" validate:"gte=1"`
	TestRuns     int     `yaml:"test_runs" validate:"gte=0"`
	MaxTime      float64 `yaml:"max_time" validate:"gt=0"`
	TimeStep     float64 `yaml:"time_step" validate:"gt=0"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0"`
	TargetError  float64 `yaml:"target_error" validate:"gte=0"`
	Seed         int64   `yaml:"seed"`
	Workers      int     `yaml:"workers" validate:"gte=0"`
	MaxRestarts  int     `yaml:"max_restarts" validate:"gte=0"`
	InitPolicy   string  `yaml:"init_policy" validate:"required"`
	ResumeRunID  string  `yaml:"resume_run_id"`

	Store        string `yaml:"store" validate:"oneof=memory sqlite"`
	DBPath       string `yaml:"db_path" validate:"required"`
	ArtifactsDir string `yaml:"artifacts_dir" validate:"required"`
	ExportsDir   string `yaml:"exports_dir" validate:"required"`
	Addr         string `yaml:"addr" validate:"required"`
}

func defaultConfig() Config {
	req := spikeprop.DefaultTrainRequest()
	return Config{
		Dataset:      req.Dataset,
		Hidden:       req.Hidden,
		Trials:       req.Trials,
		Epochs:       req.Epochs,
		TestRuns:     req.TestRuns,
		MaxTime:      req.MaxTime,
		TimeStep:     req.TimeStep,
		LearningRate: req.LearningRate,
		TargetError:  req.TargetError,
		Seed:         req.Seed,
		MaxRestarts:  req.MaxRestarts,
		InitPolicy:   req.InitPolicy,
		Store:        storage.DefaultStoreKind(),
		DBPath:       "spikeprop.db",
		ArtifactsDir: "runs",
		ExportsDir:   "exports",
		Addr:         ":8080",
	}
}

// loadConfigFile overlays the YAML document at path onto cfg. Unknown keys
// are rejected.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// flagSetters copies one flag-bound field from src to dst. Keys are flag
// names.
var flagSetters = map[string]func(dst, src *Config){
	"dataset":       func(dst, src *Config) { dst.Dataset = src.Dataset },
	"hidden":        func(dst, src *Config) { dst.Hidden = src.Hidden },
	"trials":        func(dst, src *Config) { dst.Trials = src.Trials },
	"epochs":        func(dst, src *Config) { dst.Epochs = src.Epochs },
	"test-runs":     func(dst, src *Config) { dst.TestRuns = src.TestRuns },
	"max-time":      func(dst, src *Config) { dst.MaxTime = src.MaxTime },
	"time-step":     func(dst, src *Config) { dst.TimeStep = src.TimeStep },
	"learning-rate": func(dst, src *Config) { dst.LearningRate = src.LearningRate },
	"target-error":  func(dst, src *Config) { dst.TargetError = src.TargetError },
	"seed":          func(dst, src *Config) { dst.Seed = src.Seed },
	"workers":       func(dst, src *Config) { dst.Workers = src.Workers },
	"max-restarts":  func(dst, src *Config) { dst.MaxRestarts = src.MaxRestarts },
	"init-policy":   func(dst, src *Config) { dst.InitPolicy = src.InitPolicy },
	"resume":        func(dst, src *Config) { dst.ResumeRunID = src.ResumeRunID },
	"store":         func(dst, src *Config) { dst.Store = src.Store },
	"db-path":       func(dst, src *Config) { dst.DBPath = src.DBPath },
	"artifacts-dir": func(dst, src *Config) { dst.ArtifactsDir = src.ArtifactsDir },
	"exports-dir":   func(dst, src *Config) { dst.ExportsDir = src.ExportsDir },
	"addr":          func(dst, src *Config) { dst.Addr = src.Addr },
}

// resolveConfig builds the effective configuration for a command whose
// flags are bound to fields of flagValues.
func resolveConfig(path string, flags *pflag.FlagSet, flagValues *Config) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	flags.Visit(func(f *pflag.Flag) {
		if set, ok := flagSetters[f.Name]; ok {
			set(&cfg, flagValues)
		}
	})
	if err := spikeprop.ValidateStruct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) trainRequest() spikeprop.TrainRequest {
	return spikeprop.TrainRequest{
		Dataset:      c.Dataset,
		Hidden:       c.Hidden,
		Trials:       c.Trials,
		Epochs:       c.Epochs,
		TestRuns:     c.TestRuns,
		MaxTime:      c.MaxTime,
		TimeStep:     c.TimeStep,
		LearningRate: c.LearningRate,
		TargetError:  c.TargetError,
		Seed:         c.Seed,
		Workers:      c.Workers,
		MaxRestarts:  c.MaxRestarts,
		InitPolicy:   c.InitPolicy,
		ResumeRunID:  c.ResumeRunID,
	}
}

func bindTrainFlags(fs *pflag.FlagSet, c *Config) {
	d := defaultConfig()
	fs.StringVar(&c.Dataset, "dataset", d.Dataset, "dataset name")
	fs.IntVar(&c.Hidden, "hidden", d.Hidden, "hidden neuron count")
	fs.IntVar(&c.Trials, "trials", d.Trials, "independent training trials")
	fs.IntVar(&c.Epochs, "epochs", d.Epochs, "max epochs per trial")
	fs.IntVar(&c.TestRuns, "test-runs", d.TestRuns, "evaluation passes over the test set")
	fs.Float64Var(&c.MaxTime, "max-time", d.MaxTime, "simulation horizon")
	fs.Float64Var(&c.TimeStep, "time-step", d.TimeStep, "simulation time step")
	fs.Float64Var(&c.LearningRate, "learning-rate", d.LearningRate, "learning rate")
	fs.Float64Var(&c.TargetError, "target-error", d.TargetError, "stop a trial once the epoch SSE drops below this")
	fs.Int64Var(&c.Seed, "seed", d.Seed, "base random seed")
	fs.IntVar(&c.Workers, "workers", d.Workers, "concurrent trials (0 = unbounded)")
	fs.IntVar(&c.MaxRestarts, "max-restarts", d.MaxRestarts, "restarts of a trial whose output stops firing")
	fs.StringVar(&c.InitPolicy, "init-policy", d.InitPolicy, "weight initialization policy")
	fs.StringVar(&c.ResumeRunID, "resume", "", "start from the parameters of this run")
}

// bindSimulationFlags registers the flags commands that only simulate need.
func bindSimulationFlags(fs *pflag.FlagSet, c *Config) {
	d := defaultConfig()
	fs.Float64Var(&c.MaxTime, "max-time", d.MaxTime, "simulation horizon")
	fs.Float64Var(&c.TimeStep, "time-step", d.TimeStep, "simulation time step")
}
