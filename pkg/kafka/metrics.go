package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	published   *prometheus.CounterVec
	publishSize *prometheus.CounterVec
	publishTime *prometheus.HistogramVec

	consumed   *prometheus.CounterVec
	handleTime *prometheus.HistogramVec
	laneDepth  *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metrics     *clientMetrics
)

func kafkaMetrics() *clientMetrics {
	metricsOnce.Do(func() {
		metrics = &clientMetrics{
			published: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "plantdex_kafka_published_total",
				Help: "Messages written to Kafka by topic and result",
			}, []string{"topic", "result"}),
			publishSize: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "plantdex_kafka_published_bytes_total",
				Help: "Payload bytes written to Kafka",
			}, []string{"topic"}),
			publishTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "plantdex_kafka_publish_seconds",
				Help:    "Time spent in a single write call",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			consumed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "plantdex_kafka_consumed_total",
				Help: "Messages taken off Kafka by topic and outcome",
			}, []string{"topic", "outcome"}),
			handleTime: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "plantdex_kafka_handle_seconds",
				Help:    "Time from dispatch to commit, retries included",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			laneDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "plantdex_kafka_lane_depth",
				Help: "Messages buffered per worker lane",
			}, []string{"lane"}),
		}
	})
	return metrics
}

func (m *clientMetrics) observePublish(topic string, n int, size int, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Add(float64(n))
	m.publishSize.WithLabelValues(topic).Add(float64(size))
	m.publishTime.WithLabelValues(topic).Observe(took.Seconds())
}
