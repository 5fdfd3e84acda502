package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cio-dashboard/internal/db"
	"cio-dashboard/internal/store"
)

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Replace all data with one sample record per collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(cmd.Context(), func(_ *db.Connector, st *store.Store) error {
				res, err := st.Seed(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Cleared %d existing records\n", res.Cleared)
				fmt.Fprintf(out, "Inserted priority task %s\n", res.Task.ID.Hex())
				fmt.Fprintf(out, "Inserted high priority project %s\n", res.Project.ID.Hex())
				fmt.Fprintf(out, "Inserted incident %s\n", res.Incident.ID.Hex())
				return nil
			})
		},
	}
}
