package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/concess/pkg/metrics"
)

// radiusMetrics is the Prometheus implementation of metrics.RADIUSMetrics.
type radiusMetrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	dropped         *prometheus.CounterVec
	queueDepth      prometheus.Gauge
}

// NewRADIUSMetrics creates Prometheus-backed RADIUS metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRADIUSMetrics() metrics.RADIUSMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &radiusMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_radius_requests_total",
				Help: "Total number of answered RADIUS requests by code, result and method",
			},
			[]string{"code", "result", "method"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concess_radius_request_duration_milliseconds",
				Help:    "Duration of RADIUS request processing in milliseconds",
				Buckets: durationBuckets,
			},
			[]string{"code"},
		),
		dropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_radius_dropped_total",
				Help: "Total number of RADIUS datagrams dropped without a response",
			},
			[]string{"reason"},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "concess_radius_queue_depth",
				Help: "Number of RADIUS datagrams waiting for a worker",
			},
		),
	}
}

func (m *radiusMetrics) RecordRequest(code string, result string, method string, duration time.Duration) {
	m.requests.WithLabelValues(code, result, method).Inc()
	m.requestDuration.WithLabelValues(code).Observe(milliseconds(duration))
}

func (m *radiusMetrics) RecordDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *radiusMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
