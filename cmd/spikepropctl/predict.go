package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spikeprop/pkg/spikeprop"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		runID  string
		latest bool
		input  []float64
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Run one input pattern through a trained network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(input) == 0 {
				return errors.New("predict requires --input")
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Predict(cmd.Context(), spikeprop.PredictRequest{
				RunID:    runID,
				Latest:   latest,
				Input:    input,
				MaxTime:  a.cfg.MaxTime,
				TimeStep: a.cfg.TimeStep,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run_id=%s spike=%.4f fired=%t positive=%t\n",
				result.RunID, result.Spike, result.Fired, result.Positive)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "use the most recent run")
	cmd.Flags().Float64SliceVar(&input, "input", nil, "input spike times, one per input neuron")
	bindSimulationFlags(cmd.Flags(), &a.flags)
	return cmd
}
