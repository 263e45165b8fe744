package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spikeprop/internal/model"
)

func testParameterSet(id string) model.ParameterSet {
	return model.ParameterSet{
		VersionedRecord: Versioned(),
		ID:              id,
		Dataset:         "xor",
		Topology:        model.Topology{Input: 3, Hidden: 5, Output: 1},
		Names: model.LayerNames{
			Input:  []string{"input 1", "input 2", "bias"},
			Hidden: []string{"hidden 1", "hidden 2", "hidden 3", "hidden 4", "hidden 5"},
			Output: []string{"output"},
		},
		Policy:     "xor",
		Error:      0.75,
		Parameters: model.Parameters{Weights: []float64{0.25, -0.5, 1.5}, Delays: []float64{17, 16, 15}},
	}
}

func testRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		Dataset:         "xor",
		Seed:            1,
		Trials:          10,
		Epochs:          1000,
		LearningRate:    0.01,
		BestTrial:       3,
		BestError:       0.4,
		Converged:       9,
		Accuracy:        1,
		CreatedAtUTC:    createdAt,
	}
}

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.GetParameterSet(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	set := testParameterSet("run-1")
	require.NoError(t, store.SaveParameterSet(ctx, set))
	loaded, ok, err := store.GetParameterSet(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, set, loaded)

	set.Error = 0.5
	set.Parameters.Weights[0] = 9
	require.NoError(t, store.SaveParameterSet(ctx, set))
	loaded, ok, err = store.GetParameterSet(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, loaded.Error)
	assert.Equal(t, 9.0, loaded.Parameters.Weights[0])

	require.NoError(t, store.SaveRun(ctx, testRun("run-a", "2026-02-10T10:00:00Z")))
	require.NoError(t, store.SaveRun(ctx, testRun("run-b", "2026-02-10T11:00:00Z")))
	require.NoError(t, store.SaveRun(ctx, testRun("run-c", "2026-02-10T09:00:00Z")))
	run, ok, err := store.GetRun(ctx, "run-b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testRun("run-b", "2026-02-10T11:00:00Z"), run)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-b", "run-a", "run-c"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	_, ok, err = store.GetErrorHistory(ctx, "run-a")
	require.NoError(t, err)
	assert.False(t, ok)
	history := []float64{12.5, 4.25, 0.9}
	require.NoError(t, store.SaveErrorHistory(ctx, "run-a", history))
	history[0] = 0
	got, ok, err := store.GetErrorHistory(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{12.5, 4.25, 0.9}, got)
}
