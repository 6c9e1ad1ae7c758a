// Package app wires the trading platform together: the REST gateway and
// WebSocket feed, the book cache, the arbitrage scanner/engine/executor,
// whale discovery, follow trading, accounts and the HTTP surface.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/account"
	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/internal/books"
	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/follow"
	"github.com/dmarch/polymarket-trader/internal/gateway"
	"github.com/dmarch/polymarket-trader/internal/settlement"
	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/internal/whale"
	"github.com/dmarch/polymarket-trader/pkg/config"
	"github.com/dmarch/polymarket-trader/pkg/healthprobe"
	"github.com/dmarch/polymarket-trader/pkg/httpserver"
	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
	"github.com/dmarch/polymarket-trader/pkg/websocket"
)

// App is the application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker

	limiter *ratelimit.Limiter
	gateway *gateway.Gateway
	ws      *websocket.Manager
	books   *books.Manager

	oppCache *arbitrage.OpportunityCache
	scanner  *arbitrage.Scanner

	// Trading-side components; nil without signing credentials.
	trader     *clob.Client
	settler    *settlement.Client
	executor   *arbitrage.Executor
	rebalancer *arbitrage.Rebalancer
	engine     *arbitrage.Engine

	whaleService *whale.Service
	whaleCache   *whale.WalletCache
	autoTrader   *follow.AutoTrader
	accounts     *account.Manager

	recorder   arbitrage.Recorder
	store      storage.Storage
	httpServer *httpserver.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	opts Options

	monitorMu sync.Mutex
	monitored map[string]types.MarketPair
}

// Options holds application options.
type Options struct {
	// SingleMarket pins realtime monitoring to one market slug, for
	// debugging. Empty means monitor whatever the scanner finds.
	SingleMarket string
}
