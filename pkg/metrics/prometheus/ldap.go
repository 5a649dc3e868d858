// Package prometheus implements the metrics interfaces with Prometheus
// collectors registered on metrics.GetRegistry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/concess/pkg/metrics"
)

// durationBuckets covers in-memory lookups up to slow password hashes.
var durationBuckets = []float64{
	0.1,  // 100us - searches, cleartext compares
	0.5,  // 500us
	1,    // 1ms
	5,    // 5ms
	10,   // 10ms
	50,   // 50ms - argon2id with default params
	100,  // 100ms
	250,  // 250ms - bcrypt at high cost
	500,  // 500ms
	1000, // 1s
}

// ldapMetrics is the Prometheus implementation of metrics.LDAPMetrics.
type ldapMetrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	searchEntries     prometheus.Histogram
	protocolErrors    *prometheus.CounterVec
	activeConnections prometheus.Gauge
	connections       *prometheus.CounterVec
}

// NewLDAPMetrics creates Prometheus-backed LDAP metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLDAPMetrics() metrics.LDAPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ldapMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_ldap_requests_total",
				Help: "Total number of LDAP operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "concess_ldap_request_duration_milliseconds",
				Help:    "Duration of LDAP operations in milliseconds",
				Buckets: durationBuckets,
			},
			[]string{"operation"},
		),
		searchEntries: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concess_ldap_search_entries",
				Help:    "Distribution of entries returned per search",
				Buckets: []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
			},
		),
		protocolErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_ldap_protocol_errors_total",
				Help: "Total number of LDAP connections closed for malformed input",
			},
			[]string{"kind"}, // "framing", "protocol"
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "concess_ldap_connections_active",
				Help: "Current number of open LDAP connections",
			},
		),
		connections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_ldap_connections_total",
				Help: "Total number of LDAP connection lifecycle events",
			},
			[]string{"event"}, // "accepted", "closed", "force_closed"
		),
	}
}

func (m *ldapMetrics) RecordRequest(operation string, result string, duration time.Duration) {
	m.requests.WithLabelValues(operation, result).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(milliseconds(duration))
}

func (m *ldapMetrics) RecordSearchEntries(count int) {
	m.searchEntries.Observe(float64(count))
}

func (m *ldapMetrics) RecordProtocolError(kind string) {
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *ldapMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *ldapMetrics) RecordConnectionAccepted() {
	m.connections.WithLabelValues("accepted").Inc()
}

func (m *ldapMetrics) RecordConnectionClosed() {
	m.connections.WithLabelValues("closed").Inc()
}

func (m *ldapMetrics) RecordConnectionForceClosed() {
	m.connections.WithLabelValues("force_closed").Inc()
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
