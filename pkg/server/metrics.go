package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors. Each instance owns its
// registry so several servers can coexist in one process (tests).
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	connectionsTotal   *prometheus.CounterVec
	activeConnections  prometheus.Gauge
	activeSessions     prometheus.Gauge
	sessionsSuperseded prometheus.Counter
	messagesReceived   *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	chatRelayed        *prometheus.CounterVec
	repliesReplayed    prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auboutique_connections_total",
			Help: "Accepted connections by transport",
		}, []string{"transport"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auboutique_active_connections",
			Help: "Currently open connections",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auboutique_active_sessions",
			Help: "Currently logged-in identities",
		}),
		sessionsSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auboutique_sessions_superseded_total",
			Help: "Sessions displaced by a newer login of the same identity",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auboutique_messages_received_total",
			Help: "Requests received by envelope type",
		}, []string{"type"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auboutique_errors_total",
			Help: "Error responses by code",
		}, []string{"code"}),
		chatRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auboutique_chat_relayed_total",
			Help: "Chat relay attempts by outcome",
		}, []string{"outcome"}),
		repliesReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auboutique_replies_replayed_total",
			Help: "Retried requests answered from the reply cache",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auboutique_request_duration_seconds",
			Help:    "Time spent handling a request",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connectionsTotal,
		m.activeConnections,
		m.activeSessions,
		m.sessionsSuperseded,
		m.messagesReceived,
		m.errorsTotal,
		m.chatRelayed,
		m.repliesReplayed,
		m.requestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordConnectionOpened(transport string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(transport).Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) RecordActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *Metrics) RecordSessionSuperseded() {
	if m == nil {
		return
	}
	m.sessionsSuperseded.Inc()
}

func (m *Metrics) RecordMessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordChatRelay(outcome string) {
	if m == nil {
		return
	}
	m.chatRelayed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordReplyReplayed() {
	if m == nil {
		return
	}
	m.repliesReplayed.Inc()
}

func (m *Metrics) ObserveRequest(msgType string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(msgType).Observe(d.Seconds())
}
