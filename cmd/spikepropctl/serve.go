package main

import (
	"github.com/spf13/cobra"

	"spikeprop/pkg/spikeprop"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		runID  string
		latest bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a run's size, parameters and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			srv, err := client.InspectServer(cmd.Context(), spikeprop.ParametersRequest{RunID: runID, Latest: latest})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(cmd.Context(), a.cfg.Addr)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&latest, "latest", false, "serve the most recent run")
	cmd.Flags().StringVar(&a.flags.Addr, "addr", defaultConfig().Addr, "listen address")
	return cmd
}
