package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/concess/pkg/metrics"
)

// directoryMetrics is the Prometheus implementation of
// metrics.DirectoryMetrics.
type directoryMetrics struct {
	reloads        *prometheus.CounterVec
	reloadDuration prometheus.Histogram
	lastReload     *prometheus.GaugeVec
	users          prometheus.Gauge
	groups         prometheus.Gauge
}

// NewDirectoryMetrics creates Prometheus-backed directory metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDirectoryMetrics() metrics.DirectoryMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &directoryMetrics{
		reloads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "concess_directory_reloads_total",
				Help: "Total number of record store loads by result",
			},
			[]string{"result"}, // "success", "failure"
		),
		reloadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concess_directory_reload_duration_milliseconds",
				Help:    "Duration of record store loads in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		lastReload: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "concess_directory_last_reload_timestamp_seconds",
				Help: "Unix time of the last record store load by result",
			},
			[]string{"result"},
		),
		users: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "concess_directory_users",
				Help: "Number of users in the active snapshot",
			},
		),
		groups: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "concess_directory_groups",
				Help: "Number of derived groups in the active snapshot",
			},
		),
	}
}

func (m *directoryMetrics) RecordReload(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
	m.reloadDuration.Observe(milliseconds(duration))
	m.lastReload.WithLabelValues(result).SetToCurrentTime()
}

func (m *directoryMetrics) SetDirectorySize(users, groups int) {
	m.users.Set(float64(users))
	m.groups.Set(float64(groups))
}
