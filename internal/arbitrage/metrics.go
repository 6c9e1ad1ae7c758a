package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	OpportunitiesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_arb_opportunities_cached",
		Help: "Number of opportunities currently live in the cache",
	})

	OpportunitiesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_arb_opportunities_evicted_total",
		Help: "Total opportunities evicted by sweep after a scan cycle failed to re-find them",
	})

	OpportunitiesDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_arb_opportunities_detected_total",
		Help: "Total opportunities detected by arbitrage type and source",
	}, []string{"type", "source"})

	MarketsScannedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_arb_markets_scanned_total",
		Help: "Total market pairs evaluated by the deep scanner",
	})

	ScanErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_arb_scan_errors_total",
		Help: "Total scan-side fetch failures",
	})

	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrader_arb_scan_duration_seconds",
		Help:    "Full scan cycle duration in seconds",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
	})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_arb_executions_total",
		Help: "Total execution attempts by arbitrage type and outcome",
	}, []string{"type", "outcome"})

	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrader_arb_execution_duration_seconds",
		Help:    "End-to-end execution attempt duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	RealizedProfitUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_arb_realized_profit_usd",
		Help: "Cumulative realized profit in USD, net of gas",
	})

	RebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_arb_rebalances_total",
		Help: "Total rebalance attempts by action and outcome",
	}, []string{"action", "outcome"})

	MonitoredMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_arb_monitored_markets",
		Help: "Number of markets under realtime monitoring",
	})
)
