package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cio-dashboard/internal/db"
	"cio-dashboard/internal/logger"
	"cio-dashboard/internal/metrics"
	"cio-dashboard/internal/model"
)

// State is the lifecycle phase of a Server.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config carries the server's settings and dependencies.
type Config struct {
	Addr        string // e.g. ":5000"
	Environment string
	Version     string

	ShutdownTimeout   time.Duration
	KeepaliveInterval time.Duration // zero disables the heartbeat log

	CORSAllowedOrigins []string
	SecurityHeaders    bool

	Connector *db.Connector
	Tasks     Repository[model.PriorityTask, model.TaskInput]
	Projects  Repository[model.HighPriorityProject, model.ProjectInput]
	Incidents Repository[model.Incident, model.IncidentInput]
	Metrics   *metrics.Metrics
}

// Server runs the HTTP API through its STARTING, READY and SHUTTING_DOWN
// states. Only one shutdown sequence ever runs.
type Server struct {
	cfg        Config
	httpServer *http.Server
	started    time.Time

	state    atomic.Int32
	addr     atomic.Value // net.Addr once listening
	ready    chan struct{}
	fatal    chan error
	stopOnce sync.Once

	// exit is called when shutdown overruns its deadline.
	exit func(code int)
}

// New builds a Server. Nothing is dialed or bound until Run.
func New(cfg Config) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	s := &Server{
		cfg:     cfg,
		started: time.Now(),
		ready:   make(chan struct{}),
		fatal:   make(chan error, 1),
		exit:    os.Exit,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// State reports the current lifecycle phase.
func (s *Server) State() State { return State(s.state.Load()) }

// Ready is closed once the listener is bound and the server is READY.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address, or nil before READY.
func (s *Server) Addr() net.Addr {
	if a, ok := s.addr.Load().(net.Addr); ok {
		return a
	}
	return nil
}

// Fatal reports an error from a background task. It triggers shutdown; only
// the first report is kept.
func (s *Server) Fatal(err error) {
	if err == nil {
		return
	}
	select {
	case s.fatal <- err:
	default:
	}
}

// Run connects to the database, serves HTTP until ctx is cancelled, the
// listener fails, or Fatal is called, then shuts down. It returns nil after
// a clean signal-driven shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.state.Store(int32(StateStarting))

	if _, err := s.cfg.Connector.Connect(ctx); err != nil {
		logger.Error("database connection failed", err)
		return err
	}
	logger.Info("database connected")

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		_ = s.cfg.Connector.Close(context.Background())
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.addr.Store(ln.Addr())

	serveErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	s.state.Store(int32(StateReady))
	close(s.ready)
	logger.Info("server ready",
		zap.String("addr", ln.Addr().String()),
		zap.String("environment", s.cfg.Environment),
	)

	stopKeepalive := s.startKeepalive()
	defer stopKeepalive()

	var cause error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("listener failed", err)
		cause = err
	case err := <-s.fatal:
		logger.Error("fatal error reported", err)
		cause = err
	}

	if err := s.shutdown(); err != nil {
		return err
	}
	return cause
}

// beginShutdown moves READY to SHUTTING_DOWN. It reports false if shutdown
// already started.
func (s *Server) beginShutdown() bool {
	return s.state.CompareAndSwap(int32(StateReady), int32(StateShuttingDown))
}

// shutdown drains HTTP, then closes the database. If the sequence overruns
// ShutdownTimeout the process is force-exited with status 1.
func (s *Server) shutdown() error {
	var err error
	s.stopOnce.Do(func() {
		if !s.beginShutdown() {
			return
		}
		logger.Info("graceful shutdown started", zap.Duration("timeout", s.cfg.ShutdownTimeout))

		watchdog := time.AfterFunc(s.cfg.ShutdownTimeout, func() {
			logger.Error("could not close connections in time, forcing exit", nil)
			logger.Sync()
			s.exit(1)
		})
		defer watchdog.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		if derr := s.httpServer.Shutdown(ctx); derr != nil {
			logger.Error("http drain incomplete", derr)
			_ = s.httpServer.Close()
			err = fmt.Errorf("drain http: %w", derr)
		} else {
			logger.Info("http server closed")
		}

		if cerr := s.cfg.Connector.Close(ctx); cerr != nil {
			logger.Error("database close failed", cerr)
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		} else {
			logger.Info("database connection closed")
		}
	})
	return err
}

func (s *Server) startKeepalive() (stop func()) {
	if s.cfg.KeepaliveInterval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case t := <-ticker.C:
				logger.Info("keep-alive", zap.Time("at", t.UTC()))
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}
