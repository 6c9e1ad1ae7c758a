package follow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	EventsSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_follow_events_seen_total",
		Help: "Total target-wallet activity events processed by runners",
	})

	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_follow_poll_errors_total",
		Help: "Total activity poll failures",
	})

	SuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_follow_suggestions_total",
		Help: "Total suggestions built, by accepted or dropped",
	}, []string{"status"})

	QuotaDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_follow_quota_drops_total",
		Help: "Total suggestions dropped by the daily USDC quota",
	})

	PendingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_follow_pending_depth",
		Help: "Suggestions waiting for approval in queue mode",
	})

	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_follow_executions_total",
		Help: "Total suggestion executions by mode and status",
	}, []string{"mode", "status"})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_follow_orders_placed_total",
		Help: "Total live orders placed by the auto-trader",
	})

	PaperFillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_follow_paper_fills_total",
		Help: "Total paper fills recorded against cached books",
	})
)
