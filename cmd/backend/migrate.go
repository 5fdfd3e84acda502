package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ran, err := opts.migrate(cmd.Context())
			if err != nil {
				return err
			}
			if !ran {
				fmt.Fprintf(cmd.OutOrStdout(), "Driver %q has no schema to migrate\n", opts.cfg.Database.Driver)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}
