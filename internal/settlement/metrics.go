package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	SettlementOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_settlement_ops_total",
		Help: "Total number of successful settlement operations by kind",
	}, []string{"op"})

	SettlementFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_settlement_failures_total",
		Help: "Total number of failed settlement operations by kind",
	}, []string{"op"})

	GasUsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_settlement_gas_used_total",
		Help: "Cumulative gas used by settlement writes",
	})
)
