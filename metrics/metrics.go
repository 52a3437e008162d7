// Package metrics holds the Prometheus collectors exported by the engine and
// the RPC server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tolmarket_build_info",
			Help: "Build information of the marketplace engine",
		},
		[]string{"version", "commit"},
	)

	TxTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolmarket_tx_total",
			Help: "Transactions processed, by type and outcome",
		},
		[]string{"type", "status"}, // status: "committed", "rejected"
	)

	TxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tolmarket_tx_duration_seconds",
			Help:    "Time spent executing and committing a transaction",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
		},
		[]string{"type"},
	)

	SalesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolmarket_sales_total",
			Help: "Completed purchases, split by whether the seller was signed",
		},
		[]string{"signed"},
	)

	SettlementVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tolmarket_settlement_volume_total",
			Help: "Payment-token units settled through purchases",
		},
	)

	PlatformRevenue = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolmarket_platform_revenue_total",
			Help: "Payment-token units credited to the treasury",
		},
		[]string{"source"}, // "sale", "boost", "penalty"
	)

	OpenOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tolmarket_open_orders",
			Help: "Orders currently in the order book",
		},
	)

	ActiveAgreements = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tolmarket_active_agreements",
			Help: "Signing agreements currently on record, including lapsed ones not yet cancelled",
		},
	)

	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tolmarket_rpc_requests_total",
			Help: "JSON-RPC requests, by method and outcome",
		},
		[]string{"method", "status"},
	)

	RPCRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tolmarket_rpc_rate_limited_total",
			Help: "JSON-RPC requests rejected by the per-IP rate limiter",
		},
	)
)
