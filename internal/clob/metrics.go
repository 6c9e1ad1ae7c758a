package clob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_clob_requests_total",
		Help: "Total number of CLOB API requests by method and outcome",
	}, []string{"method", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polytrader_clob_request_duration_seconds",
		Help:    "CLOB API request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_clob_orders_total",
		Help: "Total number of order submissions by type, side and outcome",
	}, []string{"order_type", "side", "outcome"})

	CancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_clob_cancels_total",
		Help: "Total number of cancel operations",
	})

	CredsBootstrapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_clob_creds_bootstraps_total",
		Help: "Total number of L2 credential derivations",
	})
)
