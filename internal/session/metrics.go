package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polytrader_session_active",
		Help: "Number of running strategy sessions",
	})

	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_session_signals_total",
		Help: "Total strategy signals by kind",
	}, []string{"kind"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrader_session_actions_total",
		Help: "Total dispatched actions by kind and outcome",
	}, []string{"kind", "outcome"})

	PersistsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrader_session_persists_total",
		Help: "Total session state writes",
	})
)
