package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cio-dashboard/internal/backup"
	"cio-dashboard/internal/config"
	"cio-dashboard/internal/logger"
	"cio-dashboard/internal/metrics"
	"cio-dashboard/internal/server"
	"cio-dashboard/internal/store"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	started := time.Now()

	logger.Info("starting cio dashboard api",
		zap.String("version", version),
		zap.String("environment", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("driver", cfg.Database.Driver),
		zap.String("database", cfg.Database.Name),
		zap.String("connection", config.MaskConnectionString(cfg.Database.ConnectionString)),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if ran, err := opts.migrate(ctx); err != nil {
		return err
	} else if ran {
		logger.Info("migrations complete")
	}

	m := metrics.New()
	m.SetInfo(version, cfg.Env, cfg.Database.Driver, started)

	conn, err := opts.connector()
	if err != nil {
		return err
	}
	st := store.New(conn, m)

	srv := server.New(server.Config{
		Addr:               cfg.Addr(),
		Environment:        cfg.Env,
		Version:            version,
		ShutdownTimeout:    cfg.ShutdownTimeout,
		KeepaliveInterval:  cfg.KeepaliveInterval,
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		SecurityHeaders:    cfg.SecurityHeadersEnabled(),
		Connector:          conn,
		Tasks:              st.Tasks,
		Projects:           st.Projects,
		Incidents:          st.Incidents,
		Metrics:            m,
	})

	if cfg.Backup.Enabled {
		objects, err := opts.backupStore(ctx)
		if err != nil {
			return err
		}
		mgr := backup.NewManager(backup.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
			Prefix:        cfg.Backup.S3Prefix,
			OnFatal:       srv.Fatal,
		}, objects, backupSources(st), m)
		// Wait for the listener so the first export has a live connection.
		go func() {
			select {
			case <-srv.Ready():
				mgr.Start(ctx)
			case <-ctx.Done():
			}
		}()
		defer mgr.Stop()
	}

	return srv.Run(ctx)
}
