package app

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

const monitorSyncInterval = 5 * time.Second

// runMarketMonitor promotes scanner-detected opportunities to realtime
// engine monitoring and demotes markets whose opportunity has expired.
func (a *App) runMarketMonitor() {
	defer a.wg.Done()

	ticker := time.NewTicker(monitorSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.syncMonitoredMarkets()
		}
	}
}

func (a *App) syncMonitoredMarkets() {
	live := make(map[string]types.MarketPair)
	for _, opp := range a.oppCache.Snapshot() {
		pair := opp.Pair
		if a.opts.SingleMarket != "" && !strings.EqualFold(pair.Slug, a.opts.SingleMarket) {
			continue
		}
		live[pair.ConditionID] = pair
	}

	a.monitorMu.Lock()
	defer a.monitorMu.Unlock()

	for conditionID, pair := range live {
		if _, ok := a.monitored[conditionID]; ok {
			continue
		}
		err := a.engine.StartMarket(a.ctx, pair)
		if err != nil {
			a.logger.Warn("market-monitor-start-failed",
				zap.String("condition-id", conditionID),
				zap.String("slug", pair.Slug),
				zap.Error(err))
			continue
		}
		a.monitored[conditionID] = pair
		a.logger.Info("market-monitor-started",
			zap.String("slug", pair.Slug),
			zap.String("question", pair.Question))
	}

	for conditionID, pair := range a.monitored {
		if _, ok := live[conditionID]; ok {
			continue
		}
		err := a.engine.StopMarket(a.ctx, conditionID)
		if err != nil {
			a.logger.Warn("market-monitor-stop-failed",
				zap.String("condition-id", conditionID),
				zap.Error(err))
		}
		delete(a.monitored, conditionID)
		a.logger.Info("market-monitor-stopped", zap.String("slug", pair.Slug))
	}
}
