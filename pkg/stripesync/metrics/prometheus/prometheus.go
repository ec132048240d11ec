package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements stripesync.Metrics using Prometheus.
type Metrics struct {
	pageFetchesTotal    *prometheus.CounterVec
	apiCallDuration     *prometheus.HistogramVec
	eventsCapturedTotal *prometheus.CounterVec
	recordsSkippedTotal *prometheus.CounterVec
	ticksTotal          *prometheus.CounterVec
	tickDuration        prometheus.Histogram
}

// NewMetrics creates a new Prometheus metrics implementation for the sync
// engine.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		pageFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "page_fetches_total",
			Help:      "Total number of pages fetched from the billing API.",
		}, []string{"endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of billing API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		eventsCapturedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "events_captured_total",
			Help:      "Total number of analytics events forwarded to the sink.",
		}, []string{"event"}),

		recordsSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "records_skipped_total",
			Help:      "Total number of billing records that produced no events.",
		}, []string{"kind", "reason"}),

		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks.",
		}, []string{"status"}),

		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stripesync",
			Name:      "tick_duration_seconds",
			Help:      "Duration of scheduler ticks in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// DefaultMetrics creates Metrics registered on the default Prometheus
// registry.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordPageFetch(endpoint, status string) {
	m.pageFetchesTotal.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordEventCaptured(event string) {
	m.eventsCapturedTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordRecordSkipped(kind, reason string) {
	m.recordsSkippedTotal.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) RecordTick(status string) {
	m.ticksTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordTickDuration(duration time.Duration) {
	m.tickDuration.Observe(duration.Seconds())
}
