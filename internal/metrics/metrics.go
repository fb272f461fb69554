package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BurnsStarted tracks burn records created per chain and mode
	BurnsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_burns_started_total",
			Help: "Total number of burn records created",
		},
		[]string{"chain", "mode"},
	)

	// PlansRejected tracks burns refused before any submission
	PlansRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_plans_rejected_total",
			Help: "Total number of burn requests rejected before submission",
		},
		[]string{"reason"},
	)

	// StepTransitions tracks step status changes
	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_step_transitions_total",
			Help: "Total number of execution step status transitions",
		},
		[]string{"chain", "kind", "status"},
	)

	// StepConfirmationLatency tracks time from submission to confirmation
	StepConfirmationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnrelay_step_confirmation_seconds",
			Help:    "Time from step submission to confirmation in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"chain", "kind"},
	)

	// QuoteRequests tracks quote provider calls by outcome
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_quote_requests_total",
			Help: "Total number of quote and bridge provider requests",
		},
		[]string{"provider", "outcome"},
	)

	// RPCCallsTotal tracks RPC calls per chain and provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burnrelay_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "provider", "method"},
	)

	// ActiveExecutions tracks plans currently being driven by this process
	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "burnrelay_active_executions",
			Help: "Number of execution plans currently running",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "burnrelay_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// StoreConflicts tracks optimistic-lock conflicts in the burn store
	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burnrelay_store_conflicts_total",
			Help: "Total number of burn record version conflicts",
		},
	)

	// EventsPublished tracks burn events per sink
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burnrelay_events_published_total",
			Help: "Total number of burn events published",
		},
		[]string{"sink", "type", "outcome"},
	)
)
