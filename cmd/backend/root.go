package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cio-dashboard/internal/backup"
	"cio-dashboard/internal/config"
	"cio-dashboard/internal/db"
	"cio-dashboard/internal/logger"
	"cio-dashboard/internal/model"
	"cio-dashboard/internal/store"
)

// rootOptions carries the global flags and the configuration loaded from
// them before any subcommand runs.
type rootOptions struct {
	configPath string

	cfg *config.Config
	// newDialer is swapped in tests.
	newDialer func(db.Config) (db.Dialer, error)
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&rootOptions{newDialer: db.NewDialer})
}

func buildRootCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backend",
		Short:         "CIO dashboard API server",
		Long:          "Serves the priority task, high priority project and war room incident API.\nWithout a subcommand it behaves like \"serve\".",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (.env, .yaml or .json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Environment: cfg.Env,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	o.cfg = cfg
	return nil
}

func (o *rootOptions) connector() (*db.Connector, error) {
	d, err := o.newDialer(db.Config{
		Driver:           o.cfg.Database.Driver,
		ConnectionString: o.cfg.Database.ConnectionString,
		Name:             o.cfg.Database.Name,
	})
	if err != nil {
		return nil, err
	}
	return db.NewConnector(d), nil
}

// migrate brings the Postgres schema up to date. Other drivers need no schema.
func (o *rootOptions) migrate(ctx context.Context) (bool, error) {
	if o.cfg.Database.Driver != db.DriverPostgres {
		return false, nil
	}
	return true, db.RunMigrations(ctx, o.cfg.Database.ConnectionString)
}

// withStore connects, runs fn and closes the connection.
func (o *rootOptions) withStore(ctx context.Context, fn func(*db.Connector, *store.Store) error) error {
	if _, err := o.migrate(ctx); err != nil {
		return err
	}
	conn, err := o.connector()
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(context.Background()); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}()
	if _, err := conn.Connect(ctx); err != nil {
		return err
	}
	return fn(conn, store.New(conn, nil))
}

func (o *rootOptions) backupStore(ctx context.Context) (*backup.MinioStore, error) {
	b := o.cfg.Backup
	return backup.NewMinioStore(ctx, backup.MinioOptions{
		Endpoint:  b.S3Endpoint,
		AccessKey: b.S3AccessKey,
		SecretKey: b.S3SecretKey,
		Bucket:    b.S3Bucket,
		UseSSL:    b.S3UseSSL,
	})
}

func backupSources(st *store.Store) []backup.Source {
	return []backup.Source{
		{Name: model.PriorityTasks, List: func(ctx context.Context) (any, error) { return st.Tasks.List(ctx) }},
		{Name: model.HighPriorityProjects, List: func(ctx context.Context) (any, error) { return st.Projects.List(ctx) }},
		{Name: model.Incidents, List: func(ctx context.Context) (any, error) { return st.Incidents.List(ctx) }},
	}
}
