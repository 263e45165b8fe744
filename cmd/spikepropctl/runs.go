package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"spikeprop/internal/stats"
	"spikeprop/pkg/spikeprop"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context(), spikeprop.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tCREATED\tDATASET\tSEED\tTRIALS\tEPOCHS\tBEST\tFINAL ERROR\tACCURACY")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%.6f\t%.4f\n",
					r.RunID, r.CreatedAtUTC, r.Dataset, r.Seed, r.Trials, r.Epochs, r.BestTrial, r.FinalError, r.Accuracy)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs list as JSON")

	cmd.AddCommand(newRunsShowCmd(a))
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the configuration and per-trial results of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			cfg, ok, err := stats.ReadRunConfig(a.cfg.ArtifactsDir, runID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run not found: %s", runID)
			}
			trials, _, err := stats.ReadTrials(a.cfg.ArtifactsDir, runID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"config":  cfg,
				"summary": trials.Summary,
				"trials":  trials.Trials,
			})
		},
	}
}
