package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the overall status reported by /health.
type HealthStatus string

const (
	HealthStatusHealthy      HealthStatus = "healthy"
	HealthStatusUnhealthy    HealthStatus = "unhealthy"
	HealthStatusShuttingDown HealthStatus = "shutting down"
)

const healthPingTimeout = 5 * time.Second

// Health is the /health response body.
type Health struct {
	Status      HealthStatus `json:"status"`
	Timestamp   string       `json:"timestamp"`
	Environment string       `json:"environment,omitempty"`
	Uptime      float64      `json:"uptime,omitempty"`
	Database    string       `json:"database,omitempty"`
	Error       string       `json:"error,omitempty"`
	Details     string       `json:"details,omitempty"`
}

// handleHealth pings the database. Once shutdown has begun it answers 503
// without touching the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.State() == StateShuttingDown {
		writeJSON(w, http.StatusServiceUnavailable, Health{
			Status:    HealthStatusShuttingDown,
			Timestamp: timestamp(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	if err := s.cfg.Connector.Ping(ctx); err != nil {
		h := Health{
			Status:    HealthStatusUnhealthy,
			Timestamp: timestamp(),
			Error:     "Database connection failed",
		}
		if s.isDevelopment() {
			h.Details = err.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, h)
		return
	}

	writeJSON(w, http.StatusOK, Health{
		Status:      HealthStatusHealthy,
		Timestamp:   timestamp(),
		Environment: s.cfg.Environment,
		Uptime:      time.Since(s.started).Seconds(),
		Database:    "connected",
	})
}
