// Package bfdmetrics wires BFD session and packet counters into
// Prometheus (github.com/prometheus/client_golang), in the shape
// internal/bfd.Dispatcher's Metrics interface expects: every method keyed
// by session name, since that is the identity the dispatcher already
// carries at every call site (internal/bfd never imports netip-free
// "peer"/"local" label pairs the way the pre-BFD server code did).
package bfdmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/bfdd/internal/bfd"
)

const (
	namespace = "bfdd"
	subsystem = "bfd"
)

const (
	labelSession   = "session"
	labelFromState = "from_state"
	labelToState   = "to_state"
	labelReason    = "reason"
)

// Collector holds every BFD Prometheus metric the daemon exposes. There is
// no AuthFailures counter: authentication is not implemented in this build
// (see internal/bfd/doc.go Non-goals), so any A-bit-set packet is counted
// under PacketsDropped with reason="auth_present" instead of its own
// metric family.
type Collector struct {
	// Sessions tracks the number of currently configured BFD sessions.
	Sessions *prometheus.GaugeVec

	// PacketsSent counts Control packets transmitted, per session.
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts Control packets accepted, per session.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets rejected before or during demux,
	// labeled with the drop reason (ttl, malformed, no_session,
	// auth_present). The session label is empty for drops that occur
	// before a session is identified.
	PacketsDropped *prometheus.CounterVec

	// StateTransitions counts FSM state transitions, labeled with the old
	// and new state names, for alerting on flaps (e.g. Up->Down).
	StateTransitions *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Sessions,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.StateTransitions,
	)

	return c
}

func newMetrics() *Collector {
	sessionLabels := []string{labelSession}
	dropLabels := []string{labelSession, labelReason}
	transitionLabels := []string{labelSession, labelFromState, labelToState}

	return &Collector{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions",
			Help:      "Number of currently configured BFD sessions.",
		}, sessionLabels),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total BFD Control packets transmitted.",
		}, sessionLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total BFD Control packets accepted.",
		}, sessionLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total BFD packets dropped, labeled by reason.",
		}, dropLabels),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total BFD session FSM state transitions.",
		}, transitionLabels),
	}
}

// RegisterSession increments the active-sessions gauge for name. Called
// when the dispatcher starts owning a session (Start, or Resume after a
// reload).
func (c *Collector) RegisterSession(name string) {
	c.Sessions.WithLabelValues(name).Inc()
}

// UnregisterSession decrements the active-sessions gauge for name. Called
// when a session is removed by Reload, or at Stop.
func (c *Collector) UnregisterSession(name string) {
	c.Sessions.WithLabelValues(name).Dec()
}

// IncPacketsSent increments the transmitted-packets counter for name.
func (c *Collector) IncPacketsSent(name string) {
	c.PacketsSent.WithLabelValues(name).Inc()
}

// IncPacketsReceived increments the accepted-packets counter for name.
func (c *Collector) IncPacketsReceived(name string) {
	c.PacketsReceived.WithLabelValues(name).Inc()
}

// IncPacketsDropped increments the dropped-packets counter for (name,
// reason). name is empty when the packet was dropped before a session
// could be identified (bad TTL, malformed header, no matching session).
func (c *Collector) IncPacketsDropped(name, reason string) {
	c.PacketsDropped.WithLabelValues(name, reason).Inc()
}

// RecordStateTransition increments the state-transition counter for a
// session moving from one FSM state to another.
func (c *Collector) RecordStateTransition(name string, from, to bfd.State) {
	c.StateTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}
