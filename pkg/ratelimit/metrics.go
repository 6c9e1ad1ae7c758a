package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_ratelimit_requests_total",
		Help: "Total number of requests dispatched per API class",
	}, []string{"class"})

	RequestsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_ratelimit_requests_cancelled_total",
		Help: "Total number of requests cancelled before acquisition",
	}, []string{"class"})

	WaitDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polytrader_ratelimit_wait_duration_seconds",
		Help:    "Time spent waiting for a slot per API class",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"class"})

	WidenEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_ratelimit_widen_events_total",
		Help: "Total number of 429-pressure widen events per API class",
	}, []string{"class"})
)
