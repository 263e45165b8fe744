package spikeprop

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spikeprop/internal/dataset"
	"spikeprop/internal/nn"
	"spikeprop/internal/training"
)

func newTestClient(t *testing.T, artifactsDir string) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
		ExportsDir:   filepath.Join(t.TempDir(), "exports"),
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func quickRequest() TrainRequest {
	req := DefaultTrainRequest()
	req.Trials = 2
	req.Epochs = 2
	req.TestRuns = 1
	req.Workers = 2
	req.MaxRestarts = 50
	return req
}

func TestTrainPersistsRun(t *testing.T) {
	ctx := context.Background()
	artifacts := t.TempDir()
	client := newTestClient(t, artifacts)

	summary, err := client.Train(ctx, quickRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(summary.RunID, "xor-1-"), summary.RunID)
	assert.Equal(t, filepath.Join(artifacts, summary.RunID), summary.ArtifactsDir)
	require.Len(t, summary.Trials, 2)
	assert.NotEmpty(t, summary.ErrorHistory)
	assert.LessOrEqual(t, len(summary.ErrorHistory), 2)
	assert.Equal(t, summary.Trials[summary.BestTrial].FinalError, summary.FinalError)
	assert.Equal(t, 8, summary.Confusion.TotalPositives()+summary.Confusion.TotalNegatives())
	assert.Equal(t, 6, summary.Validation.TotalPositives()+summary.Validation.TotalNegatives())
	for _, file := range []string{"config.json", "error_history.json", "parameters.json", "confusion.json", "validation.json", "trials.json", "error_series.csv"} {
		_, err := os.Stat(filepath.Join(summary.ArtifactsDir, file))
		assert.NoError(t, err, file)
	}

	set, err := client.Parameters(ctx, ParametersRequest{Latest: true})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, set.ID)
	assert.Equal(t, dataset.XORName, set.Dataset)
	assert.Equal(t, [3]int{3, 5, 1}, set.Topology.Sizes())
	assert.Equal(t, (3*5+5)*nn.DelayLines, set.Parameters.Len())
	assert.Equal(t, summary.FinalError, set.Error)

	history, err := client.ErrorHistory(ctx, ParametersRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, summary.ErrorHistory, history)

	runs, err := client.Runs(ctx, RunsRequest{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.RunID, runs[0].RunID)

	stored, err := client.StoredRuns(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, summary.BestTrial, stored[0].BestTrial)

	prediction, err := client.Predict(ctx, PredictRequest{Latest: true, Input: []float64{0, dataset.SpikeTimeInput, 0}})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, prediction.RunID)
	if !prediction.Fired {
		assert.Equal(t, nn.NoSpike, prediction.Spike)
	}

	_, err = client.Predict(ctx, PredictRequest{Latest: true, Input: []float64{0}})
	require.ErrorIs(t, err, nn.ErrSampleSize)
}

func TestParametersFallBackToArtifacts(t *testing.T) {
	ctx := context.Background()
	artifacts := t.TempDir()

	summary, err := newTestClient(t, artifacts).Train(ctx, quickRequest())
	require.NoError(t, err)

	other := newTestClient(t, artifacts)
	set, err := other.Parameters(ctx, ParametersRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, set.ID)

	history, err := other.ErrorHistory(ctx, ParametersRequest{RunID: summary.RunID})
	require.NoError(t, err)
	assert.Len(t, history, len(summary.ErrorHistory))
}

func TestTrainResumesFromStoredParameters(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())

	first, err := client.Train(ctx, quickRequest())
	require.NoError(t, err)

	req := quickRequest()
	req.Trials = 1
	req.ResumeRunID = first.RunID
	second, err := client.Train(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)

	req.Hidden = 3
	_, err = client.Train(ctx, req)
	require.ErrorIs(t, err, nn.ErrTopologyMismatch)

	req = quickRequest()
	req.ResumeRunID = "missing"
	_, err = client.Train(ctx, req)
	require.Error(t, err)
}

func TestTrainValidatesRequest(t *testing.T) {
	client := newTestClient(t, t.TempDir())

	req := quickRequest()
	req.Trials = -1
	req.TimeStep = -0.1
	_, err := client.Train(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trials must be at least 1")
	assert.Contains(t, err.Error(), "timestep must be greater than 0")

	req = quickRequest()
	req.Dataset = "ecg"
	_, err = client.Train(context.Background(), req)
	require.ErrorIs(t, err, dataset.ErrUnknownDataset)

	req = quickRequest()
	req.InitPolicy = "missing"
	_, err = client.Train(context.Background(), req)
	require.ErrorIs(t, err, nn.ErrInitPolicyNotFound)
}

func TestTrainZeroTargetErrorRunsEveryEpoch(t *testing.T) {
	client := newTestClient(t, t.TempDir())

	req := quickRequest()
	req.Trials = 1
	req.Epochs = 3
	req.TargetError = 0
	summary, err := client.Train(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, summary.ErrorHistory, 3)
	assert.Zero(t, summary.Converged)
}

func TestTrainRecordsMetrics(t *testing.T) {
	metrics := training.NewCollector("test")
	client, err := New(Options{StoreKind: "memory", ArtifactsDir: t.TempDir(), Metrics: metrics})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Train(context.Background(), quickRequest())
	require.NoError(t, err)
	assert.Same(t, metrics, client.Metrics())
}

func TestExportCopiesArtifacts(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t, t.TempDir())
	summary, err := client.Train(ctx, quickRequest())
	require.NoError(t, err)

	out := t.TempDir()
	exported, err := client.Export(ctx, ExportRequest{Latest: true, OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, summary.RunID, exported.RunID)
	_, err = os.Stat(filepath.Join(out, summary.RunID, "parameters.json"))
	require.NoError(t, err)

	_, err = client.Export(ctx, ExportRequest{RunID: summary.RunID, Latest: true})
	require.Error(t, err)
	_, err = client.Export(ctx, ExportRequest{})
	require.Error(t, err)
}

func TestLatestWithoutRuns(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	_, err := client.Parameters(context.Background(), ParametersRequest{Latest: true})
	require.Error(t, err)
	_, err = client.InspectServer(context.Background(), ParametersRequest{Latest: true})
	require.Error(t, err)
}

func TestGradCheckFreshNetwork(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	items, err := client.GradCheck(context.Background(), GradCheckRequest{Seed: 3})
	require.NoError(t, err)
	for _, item := range items {
		assert.NotEmpty(t, item.Report.Checks)
		assert.GreaterOrEqual(t, item.Sample, 0)
		assert.Less(t, item.Sample, 4)
	}
}

func TestUnknownStoreKind(t *testing.T) {
	_, err := New(Options{StoreKind: "postgres"})
	require.Error(t, err)
}
