// Package metrics exposes pipeline step outcomes and final model errors as
// Prometheus collectors on a caller-supplied registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"regsim/internal/model"
)

// Step outcomes used as the outcome label.
const (
	OutcomeExecuted = "executed"
	OutcomeCached   = "cached"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Metrics holds the collectors of one pipeline process.
type Metrics struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	modelError   *prometheus.GaugeVec
	replicates   prometheus.Gauge
}

// New registers the pipeline collectors on reg. A nil reg gets a fresh
// registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regsim_steps_total",
			Help: "Pipeline steps by kind and outcome",
		}, []string{"kind", "outcome"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regsim_step_duration_seconds",
			Help:    "Wall time of executed or replayed steps",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
		}, []string{"kind"}),
		modelError: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regsim_model_error",
			Help: "Average error per model family from the last report",
		}, []string{"family", "metric"}),
		replicates: f.NewGauge(prometheus.GaugeOpts{
			Name: "regsim_report_replicates",
			Help: "Replicates averaged in the last report",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStep counts a terminal step. Durations are recorded for executed
// and cached steps only.
func (m *Metrics) ObserveStep(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeExecuted || outcome == OutcomeCached {
		m.stepDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

// ObserveReport publishes the averages of a comparison report.
func (m *Metrics) ObserveReport(r model.ComparisonReport) {
	if m == nil {
		return
	}
	m.replicates.Set(float64(r.Replicates))
	for _, row := range r.Rows {
		fam := string(row.Family)
		m.modelError.WithLabelValues(fam, "estimation").Set(row.AvgCoefficientError)
		m.modelError.WithLabelValues(fam, "prediction").Set(row.AvgPredictionError)
	}
}

// WriteFile writes every collector in text exposition format to path.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return fmt.Errorf("nil metrics")
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
