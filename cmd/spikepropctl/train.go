package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spikeprop/pkg/spikeprop"
)

func newTrainCmd(a *app) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a network and record the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Train(cmd.Context(), a.cfg.trainRequest())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), trainOutput(summary))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run_id=%s best_trial=%d final_error=%.6f converged=%d/%d accuracy=%.4f\n",
				summary.RunID, summary.BestTrial, summary.FinalError, summary.Converged, len(summary.Trials), summary.Accuracy)
			fmt.Fprintln(out, summary.Confusion.String())
			fmt.Fprintf(out, "validation_accuracy=%.4f\n", summary.Validation.Accuracy())
			fmt.Fprintf(out, "artifacts=%s\n", summary.ArtifactsDir)
			return nil
		},
	}
	bindTrainFlags(cmd.Flags(), &a.flags)
	cmd.Flags().StringVar(&a.flags.ExportsDir, "exports-dir", defaultConfig().ExportsDir, "export output directory")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

type trainSummaryJSON struct {
	RunID        string    `json:"run_id"`
	ArtifactsDir string    `json:"artifacts_dir"`
	BestTrial    int       `json:"best_trial"`
	FinalError   float64   `json:"final_error"`
	Converged    int       `json:"converged"`
	Trials       int       `json:"trials"`
	Accuracy     float64   `json:"accuracy"`
	Validation   float64   `json:"validation_accuracy"`
	ErrorHistory []float64 `json:"error_history"`
}

func trainOutput(s spikeprop.TrainSummary) trainSummaryJSON {
	return trainSummaryJSON{
		RunID:        s.RunID,
		ArtifactsDir: s.ArtifactsDir,
		BestTrial:    s.BestTrial,
		FinalError:   s.FinalError,
		Converged:    s.Converged,
		Trials:       len(s.Trials),
		Accuracy:     s.Accuracy,
		Validation:   s.Validation.Accuracy(),
		ErrorHistory: s.ErrorHistory,
	}
}
