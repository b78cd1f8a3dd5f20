package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntentsSubmitted counts intent submissions by result
	IntentsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_intents_submitted_total",
			Help: "Total number of intent submissions",
		},
		[]string{"result"},
	)

	// IntentStatusUpdates counts resolver-reported status changes
	IntentStatusUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_intent_status_updates_total",
			Help: "Total number of intent status updates",
		},
		[]string{"status"},
	)

	// StreamSubscribers tracks connected intent stream clients
	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_stream_subscribers",
			Help: "Number of connected intent stream subscribers",
		},
	)

	// OrderTransitions counts resolver state machine transitions
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_order_transitions_total",
			Help: "Total number of resolver order state transitions",
		},
		[]string{"from", "to"},
	)

	// EscrowOperations counts escrow transactions by chain, operation and result
	EscrowOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_escrow_operations_total",
			Help: "Total number of escrow operations",
		},
		[]string{"chain", "operation", "result"},
	)

	// EscrowOperationDuration tracks escrow transaction latency
	EscrowOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fusion_escrow_operation_duration_seconds",
			Help:    "Escrow operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "operation"},
	)

	// ClaimsLost counts orders another resolver won
	ClaimsLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fusion_claims_lost_total",
			Help: "Total number of claim races lost",
		},
	)

	// AuctionEvaluations counts profitability decisions
	AuctionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_auction_evaluations_total",
			Help: "Total number of auction evaluations by decision",
		},
		[]string{"decision"},
	)

	// RetryAttempts counts retries of transient chain errors
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_retry_attempts_total",
			Help: "Total number of retried chain operations",
		},
		[]string{"operation"},
	)

	// ActiveOrders tracks orders in a non-terminal resolver state
	ActiveOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fusion_active_orders",
			Help: "Number of orders the resolver is executing",
		},
	)

	// ErrorsTotal counts errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fusion_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
