// Package metrics exposes prometheus collectors for the live race engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "race_ws_connections",
			Help: "Current number of open websocket sessions",
		},
	)

	WSEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_ws_events_received_total",
			Help: "Inbound websocket events by type",
		},
		[]string{"type"},
	)

	WSEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_ws_events_dropped_total",
			Help: "Inbound events dropped before reaching the engine",
		},
		[]string{"reason"}, // "malformed", "unknown_type", "rate_limited", "identity"
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "race_ws_outbound_dropped_total",
			Help: "Outbound messages dropped because a session send buffer was full",
		},
	)

	RaceRooms = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "race_rooms",
			Help: "Registered race rooms by lifecycle status",
		},
		[]string{"status"},
	)

	PresenceSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "race_presence_participants",
			Help: "Participants currently present across all rooms",
		},
	)

	BroadcastCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "race_broadcast_cycles_total",
			Help: "Throttled emit cycles run for participant updates",
		},
	)

	ThrottledUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "race_updates_throttled_total",
			Help: "Participant updates applied without an emit cycle",
		},
	)

	RacersFinished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "race_racers_finished_total",
			Help: "Finish line crossings detected",
		},
	)

	PersistTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_persist_tasks_total",
			Help: "Fire-and-forget persistence tasks by operation and result",
		},
		[]string{"op", "result"}, // result: "ok", "error", "dropped"
	)

	PersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "race_persist_queue_depth",
			Help: "Persistence tasks waiting for a worker",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "race_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "race_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)
