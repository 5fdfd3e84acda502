// Package metrics exposes Prometheus counters for HTTP traffic, datastore
// operations and backups.
//
// All recorders are safe to call on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cio"

// Outcome labels for datastore operations.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics holds the application collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DBOperations    *prometheus.CounterVec
	BackupsTotal    *prometheus.CounterVec
	BackupBytes     prometheus.Gauge
	Info            *prometheus.GaugeVec
	StartTime       prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		DBOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Repository operations by collection, operation and outcome",
			},
			[]string{"collection", "operation", "outcome"},
		),
		BackupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Backup runs by result",
			},
			[]string{"result"},
		),
		BackupBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backup_last_size_bytes",
				Help:      "Compressed size of the last successful backup",
			},
		),
		Info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Build and runtime information",
			},
			[]string{"version", "environment", "driver"},
		),
		StartTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "start_time_seconds",
				Help:      "Unix time the server started",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.DBOperations,
		m.BackupsTotal,
		m.BackupBytes,
		m.Info,
		m.StartTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format for m's registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records one completed HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordDBOperation counts a repository call.
func (m *Metrics) RecordDBOperation(collection, operation, outcome string) {
	if m == nil {
		return
	}
	m.DBOperations.WithLabelValues(collection, operation, outcome).Inc()
}

// RecordBackup counts a backup run and, on success, its size.
func (m *Metrics) RecordBackup(err error, size int64) {
	if m == nil {
		return
	}
	if err != nil {
		m.BackupsTotal.WithLabelValues("failure").Inc()
		return
	}
	m.BackupsTotal.WithLabelValues("success").Inc()
	m.BackupBytes.Set(float64(size))
}

// SetInfo publishes static process labels.
func (m *Metrics) SetInfo(version, environment, driver string, started time.Time) {
	if m == nil {
		return
	}
	m.Info.WithLabelValues(version, environment, driver).Set(1)
	m.StartTime.Set(float64(started.Unix()))
}
