package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var once sync.Once

var (
	// ComputeLatency tracks engine computations by component
	// (aggregate, index, score, detect, cycle).
	ComputeLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantdex",
			Subsystem: "engine",
			Name:      "compute_seconds",
			Help:      "Latency of engine computations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		},
		[]string{"component"},
	)

	ComputeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantdex",
			Subsystem: "engine",
			Name:      "compute_errors_total",
			Help:      "Failed engine computations by component and error class",
		},
		[]string{"component", "class"},
	)

	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantdex",
			Subsystem: "engine",
			Name:      "lock_contention_total",
			Help:      "Recomputations that waited on or were refused a keyed lock",
		},
		[]string{"component"},
	)

	OpportunitiesDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantdex",
			Subsystem: "engine",
			Name:      "opportunities_detected_total",
			Help:      "Opportunities written by type",
		},
		[]string{"type"},
	)

	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "plantdex",
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Latency of query layer reads",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	QueryCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "plantdex",
			Subsystem: "query",
			Name:      "cache_total",
			Help:      "Query cache lookups by result (hit, miss)",
		},
		[]string{"endpoint", "result"},
	)
)

// Register registers the engine collectors on the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ComputeLatency, ComputeErrors, LockContention, OpportunitiesDetected, QueryLatency, QueryCache)
	})
}

// ObserveLockWait counts a contended keyed lock. The component is the key prefix.
func ObserveLockWait(key string) {
	component := key
	if i := strings.IndexByte(key, ':'); i > 0 {
		component = key[:i]
	}
	LockContention.WithLabelValues(component).Inc()
}

