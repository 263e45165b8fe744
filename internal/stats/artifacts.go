package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"spikeprop/internal/model"
)

const runIndexFile = "run_index.json"

const (
	configFile       = "config.json"
	errorHistoryFile = "error_history.json"
	parametersFile   = "parameters.json"
	confusionFile    = "confusion.json"
	validationFile   = "validation.json"
	trialsFile       = "trials.json"
	errorSeriesFile  = "error_series.csv"
)

type RunConfig struct {
	RunID        string  `json:"run_id"`
	ResumeRunID  string  `json:"resume_run_id,omitempty"`
	Dataset      string  `json:"dataset"`
	Trials       int     `json:"trials"`
	Epochs       int     `json:"epochs"`
	TestRuns     int     `json:"test_runs"`
	MaxTime      float64 `json:"max_time"`
	TimeStep     float64 `json:"time_step"`
	LearningRate float64 `json:"learning_rate"`
	TargetError  float64 `json:"target_error"`
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers"`
	MaxRestarts  int     `json:"max_restarts"`
	InitPolicy   string  `json:"init_policy"`
	Hidden       int     `json:"hidden"`
}

// TrialArtifact records one independent training trial.
type TrialArtifact struct {
	Trial        int       `json:"trial"`
	Seed         int64     `json:"seed"`
	Restarts     int       `json:"restarts"`
	Epochs       int       `json:"epochs"`
	Converged    bool      `json:"converged"`
	FinalError   float64   `json:"final_error"`
	Accuracy     float64   `json:"accuracy"`
	ErrorHistory []float64 `json:"error_history"`
}

type RunArtifacts struct {
	Config       RunConfig          `json:"config"`
	BestTrial    int                `json:"best_trial"`
	ErrorHistory []float64          `json:"error_history"`
	FinalError   float64            `json:"final_error"`
	Parameters   model.ParameterSet `json:"parameters"`
	Confusion    ConfusionMatrix    `json:"confusion"`
	Validation   ConfusionMatrix    `json:"validation"`
	Trials       []TrialArtifact    `json:"trials"`
	Summary      TrialSummary       `json:"summary"`
}

// TrialsReport is the content of trials.json.
type TrialsReport struct {
	Summary TrialSummary    `json:"summary"`
	Trials  []TrialArtifact `json:"trials"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Dataset      string  `json:"dataset"`
	Trials       int     `json:"trials"`
	Epochs       int     `json:"epochs"`
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers"`
	BestTrial    int     `json:"best_trial"`
	FinalError   float64 `json:"final_error"`
	Accuracy     float64 `json:"accuracy"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, errorHistoryFile), map[string]any{
		"best_trial":    artifacts.BestTrial,
		"error_history": nonNilFloats(artifacts.ErrorHistory),
		"final_error":   artifacts.FinalError,
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, parametersFile), artifacts.Parameters); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, confusionFile), artifacts.Confusion.Report()); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, validationFile), artifacts.Validation.Report()); err != nil {
		return "", err
	}
	trials := artifacts.Trials
	if trials == nil {
		trials = []TrialArtifact{}
	}
	if err := writeJSON(filepath.Join(runDir, trialsFile), TrialsReport{Summary: artifacts.Summary, Trials: trials}); err != nil {
		return "", err
	}
	if err := WriteErrorSeries(runDir, artifacts.ErrorHistory); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first. Entries sharing a timestamp
// keep the most recently appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, errorHistoryFile, parametersFile, confusionFile, validationFile, trialsFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	seriesPath := filepath.Join(src, errorSeriesFile)
	if _, err := os.Stat(seriesPath); err == nil {
		if err := copyFile(seriesPath, filepath.Join(dst, errorSeriesFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

func ReadTrials(baseDir, runID string) (TrialsReport, bool, error) {
	var report TrialsReport
	ok, err := readJSON(filepath.Join(baseDir, runID, trialsFile), &report)
	if err != nil || !ok {
		return TrialsReport{}, ok, err
	}
	return report, true, nil
}

// ReadParameters loads the parameter snapshot of a finished run.
func ReadParameters(baseDir, runID string) (model.ParameterSet, bool, error) {
	var set model.ParameterSet
	ok, err := readJSON(filepath.Join(baseDir, runID, parametersFile), &set)
	if err != nil || !ok {
		return model.ParameterSet{}, ok, err
	}
	return set, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

func WriteErrorSeries(runDir string, errorHistory []float64) error {
	path := filepath.Join(runDir, errorSeriesFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"epoch", "sse"}); err != nil {
		return err
	}
	for i, sse := range errorHistory {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(sse, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadErrorSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, errorSeriesFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("error series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("error series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func nonNilFloats(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
