// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	LedgerMutations *prometheus.CounterVec // by kind: credit, debit, transfer
	LedgerErrors    *prometheus.CounterVec // by error kind

	// Exchange metrics
	TradesFilled  *prometheus.CounterVec // by pair, side
	TradesFailed  *prometheus.CounterVec // by error kind
	TradeVolume   *prometheus.CounterVec // base units, by pair
	TradeDuration prometheus.Histogram

	// Bridge metrics
	SwapsCreated    prometheus.Counter
	SwapsCompleted  prometheus.Counter
	SwapsExpired    prometheus.Counter
	SwapUnitsSold   prometheus.Counter
	SwapCreateFails *prometheus.CounterVec // by error kind

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec // by method
	RPCCallErrors  *prometheus.CounterVec   // by method

	// Feed metrics
	FeedClients         prometheus.Gauge
	FeedEventsPublished *prometheus.CounterVec // by event type

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec // by route, status
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_exchange"
	}

	return &Metrics{
		LedgerMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "mutations_total",
			Help:      "Total ledger mutations applied",
		}, []string{"kind"}),
		LedgerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Total ledger mutation failures",
		}, []string{"kind"}),

		TradesFilled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "trades_filled_total",
			Help:      "Total trades settled",
		}, []string{"pair", "side"}),
		TradesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "trades_failed_total",
			Help:      "Total trade attempts rejected or failed",
		}, []string{"kind"}),
		TradeVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "trade_volume_base_units_total",
			Help:      "Cumulative traded volume in base-token units",
		}, []string{"pair"}),
		TradeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "trade_duration_seconds",
			Help:      "Trade settlement duration",
			Buckets:   prometheus.DefBuckets,
		}),

		SwapsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "swaps_created_total",
			Help:      "Total pending swaps created",
		}),
		SwapsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "swaps_completed_total",
			Help:      "Total swaps confirmed",
		}),
		SwapsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "swaps_expired_total",
			Help:      "Total pending swaps expired by the sweeper",
		}),
		SwapUnitsSold: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "units_sold_total",
			Help:      "Cumulative units sold through completed swaps",
		}),
		SwapCreateFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "swap_create_failures_total",
			Help:      "Total swap creation failures",
		}, []string{"kind"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_duration_seconds",
			Help:      "Solana RPC call duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "rpc_call_errors_total",
			Help:      "Total Solana RPC call failures",
		}, []string{"method"}),

		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected WebSocket subscribers",
		}),
		FeedEventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_published_total",
			Help:      "Total events broadcast to the feed",
		}, []string{"type"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
