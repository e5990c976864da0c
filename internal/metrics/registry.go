// Package metrics records run statistics for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "confevo"

// Run outcomes
const (
	OutcomeAppended  = "appended"
	OutcomeNoNewData = "no_new_data"
	OutcomeFailed    = "failed"
)

// RunStats is what one run reports to the registry
type RunStats struct {
	Mode      string
	Outcome   string
	Commits   int
	Rows      int
	Anomalies int
	Duration  time.Duration
}

// Registry owns the collectors of a single process. Each Registry uses its
// own prometheus.Registry so tests do not collide on the default one.
type Registry struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	commits     *prometheus.CounterVec
	rows        *prometheus.CounterVec
	anomalies   *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// NewRegistry creates a registry with all run collectors registered
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Mining runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_processed_total",
			Help:      "Commits fetched and parsed.",
		}, []string{"mode"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "Dataset rows appended.",
		}, []string{"mode"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_anomalies_total",
			Help:      "Diff lines that ended a relationship block early.",
		}, []string{"mode"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the most recent run.",
		}, []string{"mode"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful run.",
		}, []string{"mode"}),
	}

	r.registry.MustRegister(r.runs, r.commits, r.rows, r.anomalies, r.duration, r.lastSuccess)
	return r
}

// RecordRun adds the statistics of one run
func (r *Registry) RecordRun(stats RunStats) {
	r.runs.WithLabelValues(stats.Mode, stats.Outcome).Inc()
	r.duration.WithLabelValues(stats.Mode).Set(stats.Duration.Seconds())

	if stats.Outcome == OutcomeFailed {
		return
	}
	r.commits.WithLabelValues(stats.Mode).Add(float64(stats.Commits))
	r.rows.WithLabelValues(stats.Mode).Add(float64(stats.Rows))
	r.anomalies.WithLabelValues(stats.Mode).Add(float64(stats.Anomalies))
	r.lastSuccess.WithLabelValues(stats.Mode).SetToCurrentTime()
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current values in the text exposition format
func (r *Registry) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
