// Package metrics exposes the Prometheus collectors the reconciler,
// heartbeat ingestion, stream proxy, and hibernate/wake sequences
// publish to. Everything is registered once at init and served on
// /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Reconciliations counts pod-watch reconciliation outcomes.
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_swarm_reconciliations_total",
			Help: "Total number of orchestrator reconciliation events processed.",
		},
		[]string{"event", "result"},
	)

	// AgentsByStatus gauges the current count of agents in each
	// lifecycle state, refreshed by the idle detector's scan pass.
	AgentsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aura_swarm_agents_by_status",
			Help: "Current number of agents in each lifecycle state.",
		},
		[]string{"status"},
	)

	// HibernateEvents counts hibernate sequence invocations.
	HibernateEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_swarm_hibernate_events_total",
			Help: "Total number of agent hibernate sequences, by outcome.",
		},
		[]string{"result"},
	)

	// WakeEvents counts wake sequence invocations, including implicit
	// auto-wake triggered by session issuance.
	WakeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_swarm_wake_events_total",
			Help: "Total number of agent wake sequences, by trigger and outcome.",
		},
		[]string{"trigger", "result"},
	)

	// WakeDuration observes how long a wake sequence took to reach
	// Running or fail.
	WakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aura_swarm_wake_duration_seconds",
			Help:    "Duration of agent wake sequences in seconds.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	// HeartbeatsTotal counts heartbeat ingestion calls.
	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aura_swarm_heartbeats_total",
			Help: "Total number of agent heartbeats ingested, by outcome.",
		},
		[]string{"result"},
	)

	// IdleTransitions counts agents moved to Idle by the idle detector.
	IdleTransitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_swarm_idle_transitions_total",
			Help: "Total number of agents transitioned to Idle by the idle detector.",
		},
	)

	// StreamConnections gauges currently open proxy stream connections.
	StreamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aura_swarm_stream_connections",
			Help: "Current number of open client-to-agent streaming proxy connections.",
		},
	)

	// StreamMessagesDropped counts inbound stream messages dropped for
	// exceeding the per-session rate limit.
	StreamMessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aura_swarm_stream_messages_dropped_total",
			Help: "Total number of inbound stream messages dropped for exceeding the rate limit.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Reconciliations,
		AgentsByStatus,
		HibernateEvents,
		WakeEvents,
		WakeDuration,
		HeartbeatsTotal,
		IdleTransitions,
		StreamConnections,
		StreamMessagesDropped,
	)
}
