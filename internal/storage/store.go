package storage

import (
	"context"

	"spikeprop/internal/model"
)

// Store persists trained parameter sets, run summaries and per-run error
// histories.
type Store interface {
	Init(ctx context.Context) error
	SaveParameterSet(ctx context.Context, set model.ParameterSet) error
	GetParameterSet(ctx context.Context, id string) (model.ParameterSet, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveErrorHistory(ctx context.Context, runID string, history []float64) error
	GetErrorHistory(ctx context.Context, runID string) ([]float64, bool, error)
}
