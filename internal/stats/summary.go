package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TrialSummary aggregates a set of trials of one run.
type TrialSummary struct {
	Trials        int     `json:"trials"`
	Converged     int     `json:"converged"`
	Restarts      int     `json:"restarts"`
	EpochsMean    float64 `json:"epochs_mean"`
	EpochsStd     float64 `json:"epochs_std"`
	FinalErrorMin float64 `json:"final_error_min"`
	FinalErrorMax float64 `json:"final_error_max"`
	FinalErrorAvg float64 `json:"final_error_avg"`
	AccuracyMean  float64 `json:"accuracy_mean"`
}

// SummarizeTrials computes epoch and error statistics. Only converged trials
// count towards the epoch statistics.
func SummarizeTrials(trials []TrialArtifact) TrialSummary {
	summary := TrialSummary{Trials: len(trials)}
	if len(trials) == 0 {
		return summary
	}

	epochs := make([]float64, 0, len(trials))
	errs := make([]float64, 0, len(trials))
	accuracies := make([]float64, 0, len(trials))
	summary.FinalErrorMin = math.Inf(1)
	summary.FinalErrorMax = math.Inf(-1)
	for _, trial := range trials {
		summary.Restarts += trial.Restarts
		if trial.Converged {
			summary.Converged++
			epochs = append(epochs, float64(trial.Epochs))
		}
		errs = append(errs, trial.FinalError)
		accuracies = append(accuracies, trial.Accuracy)
		summary.FinalErrorMin = math.Min(summary.FinalErrorMin, trial.FinalError)
		summary.FinalErrorMax = math.Max(summary.FinalErrorMax, trial.FinalError)
	}

	switch len(epochs) {
	case 0:
	case 1:
		summary.EpochsMean = epochs[0]
	default:
		summary.EpochsMean, summary.EpochsStd = stat.MeanStdDev(epochs, nil)
	}
	summary.FinalErrorAvg = stat.Mean(errs, nil)
	summary.AccuracyMean = stat.Mean(accuracies, nil)
	return summary
}
