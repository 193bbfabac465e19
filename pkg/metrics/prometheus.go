package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	observations *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	indexValue   *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg (useful for testing).
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdex_observations_ingested_total",
				Help: "Total number of observations written to a backend",
			},
			[]string{"backend", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plantdex_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		indexValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plantdex_market_index",
				Help: "Latest computed market index by category (overall for the composite)",
			},
			[]string{"category"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plantdex_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordObservation records one observation written to backend.
func (r *Recorder) RecordObservation(backend, source string) {
	r.observations.WithLabelValues(backend, source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordIndexValue sets the latest index value of a category.
func (r *Recorder) RecordIndexValue(category string, value float64) {
	r.indexValue.WithLabelValues(category).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
