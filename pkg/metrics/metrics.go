// Package metrics exposes client-side Prometheus collectors for the realtime
// channels and the player controller. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector the client updates.
type Metrics struct {
	reconnectAttempts    *prometheus.CounterVec
	connectionState      *prometheus.GaugeVec
	duplicatesSuppressed *prometheus.CounterVec
	eventsDelivered      *prometheus.CounterVec
	emitsDropped         *prometheus.CounterVec
	handlerPanics        *prometheus.CounterVec
	playerRetries        *prometheus.CounterVec
	playerState          *prometheus.GaugeVec
}

// New registers the client collectors on reg under namespace.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		reconnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled per channel",
		}, []string{"channel", "trigger"}),
		connectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_connection_state",
			Help:      "1 for the state each channel is currently in, 0 otherwise",
		}, []string{"channel", "state"}),
		duplicatesSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_duplicates_suppressed_total",
			Help:      "Inbound deliveries dropped by the dedup cache",
		}, []string{"channel", "event"}),
		eventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_events_delivered_total",
			Help:      "Inbound deliveries handed to registered handlers",
		}, []string{"channel", "event"}),
		emitsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_emits_dropped_total",
			Help:      "Outbound emits dropped because the channel was down or rate limited",
		}, []string{"channel", "event", "reason"}),
		handlerPanics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "socket_handler_panics_total",
			Help:      "Handlers that panicked during dispatch",
		}, []string{"channel", "event"}),
		playerRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "player_retries_total",
			Help:      "Player re-initializations scheduled after engine failures",
		}, []string{"outcome"}),
		playerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "player_controllers",
			Help:      "Player controllers per state",
		}, []string{"state"}),
	}
}

// ReconnectScheduled counts a reconnect attempt. trigger is "backoff" or "server".
func (m *Metrics) ReconnectScheduled(channel, trigger string) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(channel, trigger).Inc()
}

// ConnectionState marks state as the current state of channel among all states.
func (m *Metrics) ConnectionState(channel, state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(channel, s).Set(v)
	}
}

// DuplicateSuppressed counts a dropped duplicate delivery.
func (m *Metrics) DuplicateSuppressed(channel, event string) {
	if m == nil {
		return
	}
	m.duplicatesSuppressed.WithLabelValues(channel, event).Inc()
}

// EventDelivered counts an accepted delivery.
func (m *Metrics) EventDelivered(channel, event string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(channel, event).Inc()
}

// EmitDropped counts an outbound emit that never reached the transport.
func (m *Metrics) EmitDropped(channel, event, reason string) {
	if m == nil {
		return
	}
	m.emitsDropped.WithLabelValues(channel, event, reason).Inc()
}

// HandlerPanicked counts a recovered handler panic.
func (m *Metrics) HandlerPanicked(channel, event string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(channel, event).Inc()
}

// PlayerRetry counts a player retry decision. outcome is "scheduled" or "exhausted".
func (m *Metrics) PlayerRetry(outcome string) {
	if m == nil {
		return
	}
	m.playerRetries.WithLabelValues(outcome).Inc()
}

// PlayerTransition moves one controller from one state bucket to another.
func (m *Metrics) PlayerTransition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.playerState.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.playerState.WithLabelValues(to).Inc()
	}
}
