package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cio-dashboard/internal/backup"
	"cio-dashboard/internal/db"
	"cio-dashboard/internal/store"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export every collection to object storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			objects, err := opts.backupStore(ctx)
			if err != nil {
				return err
			}
			return opts.withStore(ctx, func(_ *db.Connector, st *store.Store) error {
				mgr := backup.NewManager(backup.Config{
					RetentionDays: opts.cfg.Backup.RetentionDays,
					Prefix:        opts.cfg.Backup.S3Prefix,
				}, objects, backupSources(st), nil)
				key, err := mgr.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s/%s\n", opts.cfg.Backup.S3Bucket, key)
				return nil
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			objects, err := opts.backupStore(ctx)
			if err != nil {
				return err
			}
			mgr := backup.NewManager(backup.Config{Prefix: opts.cfg.Backup.S3Prefix}, objects, nil, nil)
			list, err := mgr.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSIZE\tCREATED")
			for _, o := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	})

	return cmd
}
