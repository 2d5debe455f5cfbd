// Package metrics exposes Prometheus collectors for the warmup engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection pool metrics
var (
	PoolConnectionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_pool_connections_opened_total",
			Help: "Total transport connections opened by the pool",
		},
		[]string{"kind"},
	)

	PoolConnectionsCurrent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warmup_pool_connections_current",
			Help: "Current pooled connections by state",
		},
		[]string{"state"},
	)

	PoolExhaustions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warmup_pool_exhaustions_total",
			Help: "Acquire calls rejected because the pool was at its ceiling",
		},
	)
)

// Outbound send queue metrics
var (
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warmup_queue_depth",
			Help: "Messages waiting in the outbound send queue",
		},
	)

	QueueSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_queue_sends_total",
			Help: "Send attempts dispatched by the queue, by result",
		},
		[]string{"result"},
	)

	QueueRateDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warmup_queue_rate_deferred_total",
			Help: "Ticks on which admission was deferred by the rate window",
		},
	)
)

// Mailbox monitor metrics
var (
	MonitorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_monitor_events_total",
			Help: "Events emitted by mailbox monitors, by kind",
		},
		[]string{"kind"},
	)

	MonitorReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warmup_monitor_reconnects_total",
			Help: "Reconnect attempts scheduled by mailbox monitors",
		},
	)
)

// Orchestrator metrics
var (
	Interactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_interactions_total",
			Help: "Interaction status transitions, by new status",
		},
		[]string{"status"},
	)

	CrossSendRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmup_cross_send_runs_total",
			Help: "Completed cross-send runs, by strategy",
		},
		[]string{"strategy"},
	)
)
