// Package metrics exposes Prometheus instrumentation for metric evaluations.
package metrics

import (
	"errors"
	"time"

	"github.com/chrissnell/ibimetrics/internal/ibi"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeOK               = "ok"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeEmptySelection   = "empty_selection"
	OutcomeInsufficientSpan = "insufficient_span"
	OutcomeError            = "error"
)

// Metrics holds the evaluation collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Evaluations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	BatchRuns   prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ibimetrics_evaluations_total",
				Help: "Metric evaluations by metric and outcome",
			},
			[]string{"metric", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ibimetrics_evaluation_duration_seconds",
				Help:    "Duration of a single metric evaluation in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"metric"},
		),
		BatchRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ibimetrics_batch_runs_total",
				Help: "Completed batch evaluation runs",
			},
		),
	}
	reg.MustRegister(m.Evaluations, m.Duration, m.BatchRuns)
	return m
}

// Outcome maps an evaluation error to its label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ibi.ErrEmptySelection):
		return OutcomeEmptySelection
	case errors.Is(err, ibi.ErrInsufficientSpan):
		return OutcomeInsufficientSpan
	case errors.Is(err, ibi.ErrInvalidSeries), errors.Is(err, ibi.ErrInvalidParameter), errors.Is(err, ibi.ErrInvalidInterval):
		return OutcomeInvalidInput
	default:
		return OutcomeError
	}
}

// Observe records one evaluation of metric that started at start
func (m *Metrics) Observe(metric string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(metric, Outcome(err)).Inc()
	m.Duration.WithLabelValues(metric).Observe(time.Since(start).Seconds())
}

// BatchDone counts a finished batch run
func (m *Metrics) BatchDone() {
	if m == nil {
		return
	}
	m.BatchRuns.Inc()
}
