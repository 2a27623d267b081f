package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PerpCore.
type Metrics struct {
	// --- Action execution ---
	ActionsExecuted *prometheus.CounterVec
	ActionsRejected *prometheus.CounterVec
	ActionDuration  *prometheus.HistogramVec
	CommitsTotal    *prometheus.CounterVec

	// --- Transfer plans ---
	PlanEntries  prometheus.Histogram
	PlanMints    prometheus.Counter
	PlanBurns    prometheus.Counter
	SwapPathHops prometheus.Histogram

	// --- Accrual ---
	BorrowingUpdates       *prometheus.CounterVec
	FundingUpdates         *prometheus.CounterVec
	FundingFactorPerSecond *prometheus.GaugeVec
	ImpactDistributions    *prometheus.CounterVec

	// --- Forced closes ---
	LiquidationsExecuted *prometheus.CounterVec
	AdlExecuted          *prometheus.CounterVec

	// --- Ingestion ---
	RequestsReceived *prometheus.CounterVec
	RequestsRejected *prometheus.CounterVec
	NATSPullLatency  *prometheus.HistogramVec
	PublishDrops     prometheus.Counter

	// --- Persistence ---
	PersistActionsWritten   prometheus.Counter
	PersistTransfersWritten prometheus.Counter
	PersistBatchDur         prometheus.Histogram
	PersistBatchSize        prometheus.Histogram
	PersistErrors           *prometheus.CounterVec
	PersistRetry            prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Action execution
		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_actions_executed_total",
			Help: "Actions committed against a market",
		}, []string{"kind", "market"}),

		ActionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_actions_rejected_total",
			Help: "Actions dropped without commit",
		}, []string{"kind", "reason"}),

		ActionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_action_duration_seconds",
			Help:    "Time to run one action against its overlay",
			Buckets: latencyBuckets,
		}, []string{"kind"}),

		CommitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_overlay_commits_total",
			Help: "Revertible overlays committed",
		}, []string{"market"}),

		// Transfer plans
		PlanEntries: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_transfer_plan_entries",
			Help:    "Transfer entries per emitted plan",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		}),

		PlanMints: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_transfer_plan_mints_total",
			Help: "Mint entries emitted in transfer plans",
		}),

		PlanBurns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_transfer_plan_burns_total",
			Help: "Burn entries emitted in transfer plans",
		}),

		SwapPathHops: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_swap_path_hops",
			Help:    "Markets touched per swap path",
			Buckets: []float64{1, 2, 3, 4, 5},
		}),

		// Accrual
		BorrowingUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_borrowing_updates_total",
			Help: "Borrowing factor accruals",
		}, []string{"market"}),

		FundingUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_funding_updates_total",
			Help: "Funding rate updates",
		}, []string{"market"}),

		FundingFactorPerSecond: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perp_funding_factor_per_second",
			Help: "Signed funding factor per second after the last update",
		}, []string{"market"}),

		ImpactDistributions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_impact_distributions_total",
			Help: "Position impact pool distributions",
		}, []string{"market"}),

		// Forced closes
		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_liquidations_executed_total",
			Help: "Liquidation orders committed",
		}, []string{"market", "side"}),

		AdlExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_adl_executed_total",
			Help: "Auto-deleveraging orders committed",
		}, []string{"market", "side"}),

		// Ingestion
		RequestsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_requests_received_total",
			Help: "Action requests received from NATS",
		}, []string{"subject"}),

		RequestsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_requests_rejected_total",
			Help: "Action requests dropped before execution (parse, validation)",
		}, []string{"subject", "reason"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perp_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_publish_drops_total",
			Help: "Reports dropped due to full publish channel",
		}),

		// Persistence
		PersistActionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_actions_written_total",
			Help: "Action records written to Postgres",
		}),

		PersistTransfersWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_transfers_written_total",
			Help: "Transfer plan entries written to Postgres",
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perp_persist_batch_size",
			Help:    "Action records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perp_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perp_persist_retry_total",
			Help: "Persistence retries",
		}),
	}
}
