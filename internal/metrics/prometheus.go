package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements ports.Metrics using Prometheus.
type Recorder struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	bindings      prometheus.Gauge
	signals       *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	executions    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
}

// New creates a Prometheus recorder registered with reg.
// A nil reg uses the default registerer served by promhttp.Handler.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Recorder{
		cycles: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signalhub_scan_cycles_total",
				Help: "Total number of completed market scan cycles",
			},
		),
		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signalhub_scan_cycle_duration_seconds",
				Help:    "Duration of market scan cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		bindings: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalhub_scan_bindings",
				Help: "Number of bindings evaluated in the last cycle",
			},
		),
		signals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_signals_published_total",
				Help: "Total number of published signals",
			},
			[]string{"source", "priority"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_deliveries_total",
				Help: "Delivery task outcomes",
			},
			[]string{"kind", "outcome"},
		),
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_executions_total",
				Help: "Execution requests sent to the venue",
			},
			[]string{"outcome"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalhub_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordCycle records a finished scan cycle.
func (r *Recorder) RecordCycle(seconds float64, bindings, signals int) {
	r.cycles.Inc()
	r.cycleDuration.Observe(seconds)
	r.bindings.Set(float64(bindings))
}

// RecordSignal records a published signal.
func (r *Recorder) RecordSignal(source, priority string) {
	r.signals.WithLabelValues(source, priority).Inc()
}

// RecordDelivery records a delivery task outcome.
func (r *Recorder) RecordDelivery(kind, outcome string) {
	r.deliveries.WithLabelValues(kind, outcome).Inc()
}

// RecordExecution records an execution request outcome.
func (r *Recorder) RecordExecution(outcome string) {
	r.executions.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Noop discards all measurements.
type Noop struct{}

func (Noop) RecordCycle(float64, int, int) {}
func (Noop) RecordSignal(string, string)   {}
func (Noop) RecordDelivery(string, string) {}
func (Noop) RecordExecution(string)        {}
func (Noop) RecordError(string)            {}
