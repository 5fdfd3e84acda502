package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cio-dashboard/internal/config"
	"cio-dashboard/internal/db"
	"cio-dashboard/internal/store"
)

func newPingCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connecting to %s (%s)\n",
				config.MaskConnectionString(opts.cfg.Database.ConnectionString), opts.cfg.Database.Driver)

			start := time.Now()
			err := opts.withStore(ctx, func(conn *db.Connector, _ *store.Store) error {
				return conn.Ping(ctx)
			})
			if err != nil {
				return fmt.Errorf("connection failed: %w", err)
			}
			fmt.Fprintf(out, "Connection successful in %s\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "give up after this long")
	return cmd
}
