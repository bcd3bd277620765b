package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is owned by the process and injected; a fresh registry per
// instance keeps tests independent.
type Metrics struct {
	registry *prometheus.Registry

	Connections       prometheus.Gauge
	Subscriptions     prometheus.Gauge
	MessagesAppended  *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	RateLimited       prometheus.Counter
	SessionsExpired   prometheus.Counter
	RequestsCancelled prometheus.Counter
	Sweeps            *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediation",
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Live real-time connections.",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediation",
			Subsystem: "hub",
			Name:      "subscriptions",
			Help:      "Connection to request subscriptions.",
		}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Messages appended to the ledger by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "hub",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "chat",
			Name:      "rate_limited_total",
			Help:      "Sends rejected by the per-sender window.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "janitor",
			Name:      "sessions_expired_total",
			Help:      "Sessions removed for inactivity.",
		}),
		RequestsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "janitor",
			Name:      "requests_cancelled_total",
			Help:      "Pending requests cancelled for inactivity.",
		}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediation",
			Subsystem: "janitor",
			Name:      "sweeps_total",
			Help:      "Janitor sweeps by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		m.Connections,
		m.Subscriptions,
		m.MessagesAppended,
		m.EventsDropped,
		m.RateLimited,
		m.SessionsExpired,
		m.RequestsCancelled,
		m.Sweeps,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
