// Package metrics exposes Prometheus collectors for the realtime client.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agriassist"

// Metrics groups the client's collectors.
type Metrics struct {
	events       *prometheus.CounterVec
	malformed    *prometheus.CounterVec
	deduplicated prometheus.Counter
	ignored      prometheus.Counter
	requests     *prometheus.CounterVec
	connState    prometheus.Gauge
	reconnects   prometheus.Counter
	unreadNotif  prometheus.Gauge
	unreadChat   prometheus.Gauge
	resyncs      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "events_total",
			Help:      "Push events received, by event name.",
		}, []string{"event"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "malformed_total",
			Help:      "Push payloads skipped because they failed validation.",
		}, []string{"event"}),
		deduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "deduplicated_total",
			Help:      "Messages dropped because the thread already held the id.",
		}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "foreign_messages_total",
			Help:      "Pushed messages ignored because they did not involve the session user.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "REST requests, by method and outcome.",
		}, []string{"method", "outcome"}),
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "reconnects_total",
			Help:      "Dial attempts after the first one.",
		}),
		unreadNotif: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "unread",
			Help:      "Unread notifications in the store.",
		}),
		unreadChat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "unread",
			Help:      "Unread inbound messages across all threads.",
		}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "history_loads_total",
			Help:      "History reloads, by trigger.",
		}, []string{"trigger"}),
	}

	for _, c := range []prometheus.Collector{
		m.events, m.malformed, m.deduplicated, m.ignored, m.requests,
		m.connState, m.reconnects, m.unreadNotif, m.unreadChat, m.resyncs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) Event(name string) {
	if m != nil {
		m.events.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Malformed(name string) {
	if m != nil {
		m.malformed.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) Deduplicated() {
	if m != nil {
		m.deduplicated.Inc()
	}
}

func (m *Metrics) ForeignMessage() {
	if m != nil {
		m.ignored.Inc()
	}
}

// Request records a REST call; outcome is "ok", "error" or an HTTP status.
func (m *Metrics) Request(method, outcome string) {
	if m != nil {
		m.requests.WithLabelValues(method, outcome).Inc()
	}
}

func (m *Metrics) ConnectionState(v int) {
	if m != nil {
		m.connState.Set(float64(v))
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) UnreadNotifications(n int) {
	if m != nil {
		m.unreadNotif.Set(float64(n))
	}
}

func (m *Metrics) UnreadMessages(n int) {
	if m != nil {
		m.unreadChat.Set(float64(n))
	}
}

func (m *Metrics) HistoryLoad(trigger string) {
	if m != nil {
		m.resyncs.WithLabelValues(trigger).Inc()
	}
}
