package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service-level Prometheus collectors.
type Metrics struct {
	SessionsConnected prometheus.Gauge
	RoomsActive       prometheus.Gauge
	EventsRelayed     *prometheus.CounterVec
	MutationsTotal    *prometheus.CounterVec
	AccessDenied      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// GetMetrics returns the process-wide metrics instance, registering the
// collectors on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics("avasheets", prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// NewMetrics creates metrics registered with the provided registerer.
func NewMetrics(namespace string, registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "sessions_connected",
			Help:      "Number of currently connected realtime sessions",
		}),
		RoomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one member",
		}),
		EventsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collab",
			Name:      "events_relayed_total",
			Help:      "Total realtime events fanned out, by event type",
		}, []string{"event"}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "cell_changes_total",
			Help:      "Total recorded cell changes, by classification",
		}, []string{"classification"}),
		AccessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "denied_total",
			Help:      "Total access denials, by operation",
		}, []string{"operation"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	collectors := []prometheus.Collector{
		m.SessionsConnected,
		m.RoomsActive,
		m.EventsRelayed,
		m.MutationsTotal,
		m.AccessDenied,
		m.RequestDuration,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			// Duplicate registration is safe to ignore, descriptors are
			// identical across instances.
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}

	return m
}
