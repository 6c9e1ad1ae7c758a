package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_gateway_requests_total",
		Help: "Total number of REST requests by class and outcome",
	}, []string{"class", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polytrader_gateway_request_duration_seconds",
		Help:    "REST request duration by class",
		Buckets: prometheus.DefBuckets,
	}, []string{"class"})
)
