package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/docstream-go/core/metrics"
	"github.com/codewandler/docstream-go/core/service"
)

// serviceMetrics implements service.Metrics using Prometheus.
type serviceMetrics struct {
	// Reads
	fetchDuration *prometheus.HistogramVec
	decoded       *prometheus.CounterVec

	// Subscriptions
	activeSubscriptions *prometheus.GaugeVec
	droppedStoreErrors  *prometheus.CounterVec

	// Writes
	writeDuration *prometheus.HistogramVec
	writes        *prometheus.CounterVec
}

// NewServiceMetrics creates a Prometheus implementation of service.Metrics
// and registers its collectors on reg.
func NewServiceMetrics(reg prometheus.Registerer) service.Metrics {
	m := &serviceMetrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docstream_fetch_duration_seconds",
			Help:    "Latency of one-shot reads in seconds",
			Buckets: defaultBuckets,
		}, []string{"value_type"}),

		decoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docstream_decoded_total",
			Help: "Total number of decode outcomes",
		}, []string{"value_type", "outcome"}),

		activeSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docstream_active_subscriptions",
			Help: "Number of live store subscriptions",
		}, []string{"value_type"}),

		droppedStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docstream_dropped_store_errors_total",
			Help: "Total number of store errors not forwarded to change streams",
		}, []string{"value_type"}),

		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docstream_write_duration_seconds",
			Help:    "Store write latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"value_type"}),

		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docstream_writes_total",
			Help: "Total number of writes",
		}, []string{"value_type", "success"}),
	}

	reg.MustRegister(
		m.fetchDuration,
		m.decoded,
		m.activeSubscriptions,
		m.droppedStoreErrors,
		m.writeDuration,
		m.writes,
	)

	return m
}

func (m *serviceMetrics) FetchDuration(valueType string) metrics.Timer {
	return newTimer(m.fetchDuration.WithLabelValues(valueType))
}

func (m *serviceMetrics) Decoded(valueType string, outcome string) {
	m.decoded.WithLabelValues(valueType, outcome).Inc()
}

func (m *serviceMetrics) SubscriptionStarted(valueType string) {
	m.activeSubscriptions.WithLabelValues(valueType).Inc()
}

func (m *serviceMetrics) SubscriptionStopped(valueType string) {
	m.activeSubscriptions.WithLabelValues(valueType).Dec()
}

func (m *serviceMetrics) StoreErrorDropped(valueType string) {
	m.droppedStoreErrors.WithLabelValues(valueType).Inc()
}

func (m *serviceMetrics) WriteDuration(valueType string) metrics.Timer {
	return newTimer(m.writeDuration.WithLabelValues(valueType))
}

func (m *serviceMetrics) Written(valueType string, success bool) {
	m.writes.WithLabelValues(valueType, strconv.FormatBool(success)).Inc()
}

var _ service.Metrics = (*serviceMetrics)(nil)
