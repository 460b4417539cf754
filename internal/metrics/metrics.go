// Package metrics records loop activity as Prometheus metrics and writes
// them to a node_exporter textfile after every session.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ferdousbhai/create-fastreact/internal/safety"
	"github.com/ferdousbhai/create-fastreact/internal/storage"
)

const namespace = "fastreact_agent"

// Recorder owns a private registry so tests and concurrent runs never share
// global collectors.
type Recorder struct {
	registry *prometheus.Registry

	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	rollbacks       prometheus.Counter
	commands        *prometheus.CounterVec
	passing         prometheus.Gauge
	total           prometheus.Gauge
}

// New creates a Recorder with all collectors registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Agent sessions run, by mode and status.",
		}, []string{"mode", "status"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of agent sessions.",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
		}, []string{"mode"}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_rollbacks_total",
			Help:      "Sessions whose feature ledger changes were rejected and restored.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Shell commands checked by the validator, by verdict.",
		}, []string{"verdict"}),
		passing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_passing",
			Help:      "Features marked as passing in the committed ledger.",
		}),
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "features_total",
			Help:      "Features in the committed ledger.",
		}),
	}
	r.registry.MustRegister(r.sessions, r.sessionDuration, r.rollbacks, r.commands, r.passing, r.total)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSession records one finished session.
func (r *Recorder) ObserveSession(rec *storage.SessionRecord) {
	r.sessions.WithLabelValues(rec.Mode, rec.Status).Inc()
	r.sessionDuration.WithLabelValues(rec.Mode).Observe(rec.DurationSeconds)
	if rec.RolledBack {
		r.rollbacks.Inc()
	}
	r.SetProgress(rec.PassingAfter, rec.Total)
}

// SetProgress updates the feature gauges.
func (r *Recorder) SetProgress(passing, total int) {
	r.passing.Set(float64(passing))
	r.total.Set(float64(total))
}

// ObserveCommand counts one validator verdict.
func (r *Recorder) ObserveCommand(v safety.Verdict) {
	verdict := "allowed"
	if !v.Allowed {
		verdict = "blocked"
	}
	r.commands.WithLabelValues(verdict).Inc()
}

// WriteTextfile writes the registry in text exposition format to path.
// WriteToTextfile renames a temp file into place, so a scraping
// node_exporter never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
