package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"spikeprop/pkg/spikeprop"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		runID  string
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run to the exports directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), spikeprop.ExportRequest{
				RunID:  runID,
				Latest: latest,
				OutDir: a.cfg.ExportsDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&a.flags.ExportsDir, "exports-dir", defaultConfig().ExportsDir, "export output directory")
	return cmd
}
