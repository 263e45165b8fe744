package storage

import (
	"context"
	"errors"
	"sync"

	"spikeprop/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	params      map[string]model.ParameterSet
	runs        map[string]model.RunRecord
	history     map[string][]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.params = make(map[string]model.ParameterSet)
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	return nil
}

func (s *MemoryStore) SaveParameterSet(_ context.Context, set model.ParameterSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.params[set.ID] = cloneParameterSet(set)
	return nil
}

func (s *MemoryStore) GetParameterSet(_ context.Context, id string) (model.ParameterSet, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.params[id]
	if !ok {
		return model.ParameterSet{}, false, nil
	}
	return cloneParameterSet(set), true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRunsNewestFirst(runs)
	return runs, nil
}

func (s *MemoryStore) SaveErrorHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetErrorHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

var errNotInitialized = errors.New("store is not initialized")

func cloneParameterSet(set model.ParameterSet) model.ParameterSet {
	set.Parameters = set.Parameters.Clone()
	set.Names = model.LayerNames{
		Input:  append([]string(nil), set.Names.Input...),
		Hidden: append([]string(nil), set.Names.Hidden...),
		Output: append([]string(nil), set.Names.Output...),
	}
	return set
}
