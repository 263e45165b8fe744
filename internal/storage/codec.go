package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"spikeprop/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record stamp written by this build.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeParameterSet(set model.ParameterSet) ([]byte, error) {
	return json.Marshal(set)
}

func DecodeParameterSet(data []byte) (model.ParameterSet, error) {
	var set model.ParameterSet
	if err := json.Unmarshal(data, &set); err != nil {
		return model.ParameterSet{}, err
	}
	if err := checkVersion(set.VersionedRecord); err != nil {
		return model.ParameterSet{}, err
	}
	return set, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeErrorHistory(history []float64) ([]byte, error) {
	if history == nil {
		history = []float64{}
	}
	return json.Marshal(history)
}

func DecodeErrorHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// sortRunsNewestFirst orders by creation time, then by id for a stable listing.
func sortRunsNewestFirst(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
}
