package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workhub"

// Refresh outcomes, used as the "outcome" label.
const (
	RefreshRotated  = "rotated"
	RefreshNoCookie = "no_session"
	RefreshInvalid  = "invalid"
	RefreshReuse    = "reuse"
	RefreshError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	Refreshes   *prometheus.CounterVec
	Logins      *prometheus.CounterVec
	Revocations prometheus.Counter
	OnlineUsers prometheus.Gauge
	WSConns     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_total",
			Help:      "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Sessions issued by method and result.",
		}, []string{"method", "result"}),
		Revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "refresh_revoked_tokens_total",
			Help:      "Refresh tokens revoked because a stale token was replayed.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "online_users",
			Help:      "Users with a joined realtime connection.",
		}),
		WSConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Refreshes, m.Logins, m.Revocations, m.OnlineUsers, m.WSConns,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
