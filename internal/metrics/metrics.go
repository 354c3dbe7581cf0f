// Package metrics holds the Prometheus instruments of migration and seeding
// runs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Config configures metric export. CLI runs are short-lived, so metrics are
// pushed to a Pushgateway at the end of a run instead of being scraped.
type Config struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// Metrics tracks migration and seeding progress.
type Metrics struct {
	registry *prometheus.Registry

	// RecordsTotal counts import outcomes by status.
	RecordsTotal *prometheus.CounterVec

	// RecordDuration tracks per-record import latency.
	RecordDuration prometheus.Histogram

	// ResetLinksTotal counts reset link attempts by result ("issued", "failed").
	ResetLinksTotal *prometheus.CounterVec

	// SeedWritesTotal counts document writes by collection and result.
	SeedWritesTotal *prometheus.CounterVec

	// ExportedAccounts is the size of the last export.
	ExportedAccounts prometheus.Gauge
}

// New creates metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctmigrate_records_total",
				Help: "Import outcomes by status",
			},
			[]string{"status"},
		),
		RecordDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "acctmigrate_record_duration_seconds",
				Help:    "Time spent importing one record",
				Buckets: prometheus.DefBuckets,
			},
		),
		ResetLinksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctmigrate_reset_links_total",
				Help: "Password reset link attempts by result",
			},
			[]string{"result"},
		),
		SeedWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acctmigrate_seed_writes_total",
				Help: "Document store writes by collection and result",
			},
			[]string{"collection", "result"},
		),
		ExportedAccounts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "acctmigrate_exported_accounts",
				Help: "Accounts in the last export",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRecord(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RecordsTotal.WithLabelValues(status).Inc()
	m.RecordDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveResetLink(issued bool) {
	if m == nil {
		return
	}
	result := "issued"
	if !issued {
		result = "failed"
	}
	m.ResetLinksTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSeedWrite(collection string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.SeedWritesTotal.WithLabelValues(collection, result).Inc()
}

func (m *Metrics) SetExported(n int) {
	if m == nil {
		return
	}
	m.ExportedAccounts.Set(float64(n))
}

// Push sends the collected metrics to a Pushgateway, grouped by run ID.
func (m *Metrics) Push(cfg Config, runID string) error {
	if m == nil || !cfg.Enabled {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = "acctmigrate"
	}
	err := push.New(cfg.PushgatewayURL, job).
		Gatherer(m.registry).
		Grouping("run_id", runID).
		Push()
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
