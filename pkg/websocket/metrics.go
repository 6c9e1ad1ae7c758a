package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_ws_active_connections",
		Help: "Number of active WebSocket connections",
	})

	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_ws_reconnect_attempts_total",
		Help: "Total number of WebSocket reconnection attempts",
	})

	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_ws_reconnect_failures_total",
		Help: "Total number of WebSocket reconnection failures",
	})

	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrader_ws_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"event_type"},
	)

	MessageLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrader_ws_message_latency_seconds",
		Help:    "WebSocket message dispatch latency",
		Buckets: prometheus.DefBuckets,
	})

	SubscriptionCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_ws_subscription_count",
		Help: "Number of active asset subscriptions",
	})

	MessagesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polytrader_ws_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped",
		},
		[]string{"reason"},
	)

	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrader_ws_connection_duration_seconds",
		Help:    "Duration of WebSocket connections before disconnect",
		Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800, 43200, 86400},
	})

	UnsubscriptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_ws_unsubscriptions_total",
		Help: "Total number of asset unsubscriptions",
	})
)
