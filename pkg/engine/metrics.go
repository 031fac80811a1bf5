package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vulntor/conductor/pkg/plugin"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ExecutionsTotal *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	WorkersBusy     prometheus.Gauge
	ReadyQueueDepth prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_plugin_executions_total",
				Help: "Total number of plugins that reached a terminal disposition",
			},
			[]string{"plugin", "disposition"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_plugin_duration_seconds",
				Help:    "Plugin execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 4, 8),
			},
			[]string{"plugin"},
		),
		WorkersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_workers_busy",
			Help: "Number of workers currently running a plugin",
		}),
		ReadyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "conductor_ready_queue_depth",
			Help: "Number of ready plugins waiting for a free worker",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.ExecutionsTotal,
			m.Duration,
			m.WorkersBusy,
			m.ReadyQueueDepth,
		)
	}
	return m
}

func (m *Metrics) observe(r plugin.Result) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(r.Plugin, string(r.Disposition)).Inc()
	if r.Disposition.Ran() {
		m.Duration.WithLabelValues(r.Plugin).Observe(r.Duration().Seconds())
	}
}

func (m *Metrics) setBusy(n int) {
	if m == nil {
		return
	}
	m.WorkersBusy.Set(float64(n))
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.ReadyQueueDepth.Set(float64(n))
}
