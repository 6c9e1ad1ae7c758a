package books

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_books_updates_total",
		Help: "Total number of market events processed by type",
	}, []string{"event_type"})

	UpdatesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_books_updates_dropped_total",
		Help: "Total number of market events dropped",
	}, []string{"reason"})

	UpdateProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrader_books_update_processing_duration_seconds",
		Help:    "Time spent applying one market event",
		Buckets: prometheus.ExponentialBuckets(0.000001, 2, 16),
	})

	SnapshotsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_books_snapshots_tracked",
		Help: "Number of asset book snapshots currently cached",
	})
)
