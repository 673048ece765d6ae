package ipc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/viewbridge/pkg/middleware"
)

// Eviction reasons recorded by Metrics.
const (
	evictIOError  = "io_error"
	evictClose    = "connection_close"
	evictIdle     = "idle"
	evictShutdown = "shutdown"
)

// Metrics holds the IPC client metrics. A nil *Metrics records nothing.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter
	unavailable     prometheus.Counter
	dialsTotal      prometheus.Counter
	evictionsTotal  *prometheus.CounterVec
	idleConns       prometheus.Gauge
}

// NewMetrics registers the client metrics under the "ipc" subsystem unless
// another subsystem is given. Without middleware.WithRegistry they go to
// prometheus.DefaultRegisterer, and registering twice against the same
// registry panics: build one Metrics per registry and share it between
// clients.
func NewMetrics(opts ...middleware.MetricsOption) *Metrics {
	config := middleware.NewMetricsConfig(append([]middleware.MetricsOption{middleware.WithSubsystem("ipc")}, opts...)...)
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of render calls by path and status",
			ConstLabels: config.ConstLabels,
		}, []string{"path", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Render call duration in seconds, retries included",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"path"}),

		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "retries_total",
			Help:        "Total number of render calls retried on a fresh connection",
			ConstLabels: config.ConstLabels,
		}),

		unavailable: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "unavailable_total",
			Help:        "Total number of calls that found no render service listening",
			ConstLabels: config.ConstLabels,
		}),

		dialsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dials_total",
			Help:        "Total number of connections opened to the render service",
			ConstLabels: config.ConstLabels,
		}),

		evictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evictions_total",
			Help:        "Total number of connections closed by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"reason"}),

		idleConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "idle_connections",
			Help:        "Number of pooled connections waiting for reuse",
			ConstLabels: config.ConstLabels,
		}),
	}
}

func (m *Metrics) observeCall(path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(path, label).Inc()
	m.requestDuration.WithLabelValues(path).Observe(d.Seconds())
}

func (m *Metrics) retry() {
	if m != nil {
		m.retriesTotal.Inc()
	}
}

func (m *Metrics) serviceUnavailable() {
	if m != nil {
		m.unavailable.Inc()
	}
}

func (m *Metrics) dial() {
	if m != nil {
		m.dialsTotal.Inc()
	}
}

func (m *Metrics) evict(reason string) {
	if m != nil {
		m.evictionsTotal.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) setIdle(n int) {
	if m != nil {
		m.idleConns.Set(float64(n))
	}
}
