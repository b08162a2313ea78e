// Package metrics exposes the server's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ircd"

// Metrics contains the server's collectors
type Metrics struct {
	ConnectionsOpen   prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	Disconnects       *prometheus.CounterVec
	Registrations     prometheus.Counter
	UsersOnline       prometheus.Gauge
	ChannelsOpen      prometheus.Gauge
	MessagesReceived  *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	LinesSent         prometheus.Counter
	DispatchDuration  *prometheus.HistogramVec
	PersistenceErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "open",
			Help:      "Currently open client connections",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Total accepted client connections",
		}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Closed client connections by reason",
		}, []string{"reason"}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "users",
			Name:      "registrations_total",
			Help:      "Total completed registrations",
		}),
		UsersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "users",
			Name:      "online",
			Help:      "Registered users currently connected",
		}),
		ChannelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channels",
			Name:      "open",
			Help:      "Channels with at least one member",
		}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Parsed client messages by command",
		}, []string{"command"}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "parse_errors_total",
			Help:      "Client lines dropped because they did not parse",
		}),
		LinesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Lines fully written to clients",
		}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Time spent handling one client message",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"command"}),
		PersistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Failed loads and saves of on-disk state",
		}, []string{"file"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.ConnectionsOpen, m.ConnectionsTotal, m.Disconnects,
			m.Registrations, m.UsersOnline, m.ChannelsOpen,
			m.MessagesReceived, m.ParseErrors, m.LinesSent,
			m.DispatchDuration, m.PersistenceErrors,
		)
	}
	return m
}

// RecordAccept counts a newly accepted connection
func (m *Metrics) RecordAccept() {
	if m == nil {
		return
	}
	m.ConnectionsTotal.Inc()
	m.ConnectionsOpen.Inc()
}

// RecordDisconnect counts a torn down connection
func (m *Metrics) RecordDisconnect(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsOpen.Dec()
	m.Disconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordRegistration() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}

// RecordMessage counts a dispatched message and its handling time
func (m *Metrics) RecordMessage(command string, d time.Duration) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(command).Inc()
	m.DispatchDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) RecordParseErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ParseErrors.Add(float64(n))
}

func (m *Metrics) RecordLineSent() {
	if m == nil {
		return
	}
	m.LinesSent.Inc()
}

func (m *Metrics) RecordPersistenceError(file string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(file).Inc()
}

// SetPopulation updates the user and channel gauges
func (m *Metrics) SetPopulation(users, channels int) {
	if m == nil {
		return
	}
	m.UsersOnline.Set(float64(users))
	m.ChannelsOpen.Set(float64(channels))
}
