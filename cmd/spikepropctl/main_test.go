package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error", "--store", "memory"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestResolveConfigLayering(t *testing.T) {
	path := writeConfig(t, "trials: 3\nepochs: 7\nlearning_rate: 0.05\n")

	var flagValues Config
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	bindTrainFlags(fs, &flagValues)
	require.NoError(t, fs.Parse([]string{"--epochs", "9"}))

	cfg, err := resolveConfig(path, fs, &flagValues)
	require.NoError(t, err)

	want := defaultConfig()
	want.Trials = 3
	want.Epochs = 9
	want.LearningRate = 0.05
	assert.Equal(t, want, cfg)
}

func TestResolveConfigDefaultsWithoutFile(t *testing.T) {
	var flagValues Config
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	bindTrainFlags(fs, &flagValues)
	require.NoError(t, fs.Parse(nil))

	cfg, err := resolveConfig("", fs, &flagValues)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestResolveConfigErrors(t *testing.T) {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	var flagValues Config

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown key", content: "trails: 3\n", want: "trails"},
		{name: "invalid trials", content: "trials: 0\n", want: "trials must be at least 1"},
		{name: "invalid store", content: "store: redis\n", want: "store must be one of"},
		{name: "bad yaml", content: "trials: [\n", want: "config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveConfig(writeConfig(t, tc.content), fs, &flagValues)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	_, err := resolveConfig(filepath.Join(t.TempDir(), "missing.yaml"), fs, &flagValues)
	require.Error(t, err)
}

func TestEmptyConfigFileKeepsDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("train", pflag.ContinueOnError)
	var flagValues Config
	cfg, err := resolveConfig(writeConfig(t, ""), fs, &flagValues)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		logger, err := newLogger(format, "debug")
		require.NoError(t, err, format)
		require.NotNil(t, logger)
	}
	_, err := newLogger("xml", "info")
	require.Error(t, err)
	_, err = newLogger("json", "loud")
	require.Error(t, err)
}

func TestCommandWorkflow(t *testing.T) {
	artifacts := t.TempDir()
	exports := t.TempDir()
	config := writeConfig(t, strings.Join([]string{
		"trials: 1",
		"epochs: 1",
		"test_runs: 1",
		"max_restarts: 50",
		"artifacts_dir: " + artifacts,
		"",
	}, "\n"))

	out, err := execute(t, "--config", config, "train", "--json")
	require.NoError(t, err, out)
	var summary trainSummaryJSON
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.True(t, strings.HasPrefix(summary.RunID, "xor-1-"), summary.RunID)
	assert.Equal(t, 1, summary.Trials)
	assert.Len(t, summary.ErrorHistory, 1)

	out, err = execute(t, "--artifacts-dir", artifacts, "runs")
	require.NoError(t, err, out)
	assert.Contains(t, out, summary.RunID)
	assert.Contains(t, out, "FINAL ERROR")

	out, err = execute(t, "--artifacts-dir", artifacts, "runs", "show", summary.RunID)
	require.NoError(t, err, out)
	var shown map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Contains(t, string(shown["config"]), summary.RunID)

	_, err = execute(t, "--artifacts-dir", artifacts, "runs", "show", "missing")
	require.Error(t, err)

	out, err = execute(t, "--artifacts-dir", artifacts, "predict", "--latest", "--input", "0,6,0")
	require.NoError(t, err, out)
	assert.Contains(t, out, "run_id="+summary.RunID)
	assert.Contains(t, out, "fired=")

	out, err = execute(t, "--artifacts-dir", artifacts, "export", "--latest", "--exports-dir", exports)
	require.NoError(t, err, out)
	assert.Contains(t, out, "exported run_id="+summary.RunID)
	_, err = os.Stat(filepath.Join(exports, summary.RunID, "trials.json"))
	require.NoError(t, err)

	out, err = execute(t, "--artifacts-dir", artifacts, "gradcheck", "--latest", "--json")
	require.NoError(t, err, out)
	assert.True(t, json.Valid([]byte(out)))
}

func TestTrainRejectsInvalidFlags(t *testing.T) {
	_, err := execute(t, "--artifacts-dir", t.TempDir(), "train", "--trials", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trials must be at least 1")
}

func TestPredictRequiresInput(t *testing.T) {
	_, err := execute(t, "--artifacts-dir", t.TempDir(), "predict", "--latest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--input")
}

func TestRunsEmpty(t *testing.T) {
	out, err := execute(t, "--artifacts-dir", t.TempDir(), "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs found")
}
