package whale

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	TradesObservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_whale_trades_observed_total",
		Help: "Total qualifying trades fed through the observation gate",
	})

	AnalysisQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_whale_analysis_queue_depth",
		Help: "Addresses waiting for a full history analysis",
	})

	AnalysesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_whale_analyses_total",
		Help: "Total wallet analyses run",
	})

	WhalesPromotedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_whale_promoted_total",
		Help: "Total wallets promoted to the watched index",
	})

	CacheQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_whale_cache_queue_depth",
		Help: "Addresses waiting for a serialized cache refresh",
	})

	CacheRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_whale_cache_refreshes_total",
		Help: "Total wallet cache refreshes by outcome",
	}, []string{"outcome"})
)
