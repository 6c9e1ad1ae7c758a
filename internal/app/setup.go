package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
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

// New builds the application graph from configuration. Components are
// constructed but not started; Run brings them up. Without a signing key the
// app runs in observer mode: scanner, book cache, whale discovery and the
// read API, with no execution engine.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		opts:          *opts,
		healthChecker: healthprobe.New(),
		oppCache:      arbitrage.NewOpportunityCache(logger),
		ctx:           ctx,
		cancel:        cancel,
		monitored:     make(map[string]types.MarketPair),
	}

	a.setupFabric()
	a.setupMarketData()

	if err := a.setupStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}
	if err := a.setupTrading(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup trading: %w", err)
	}
	a.setupScanner()
	if err := a.setupIntelligence(); err != nil {
		cancel()
		return nil, fmt.Errorf("setup intelligence: %w", err)
	}
	a.setupHTTPServer()

	return a, nil
}

// setupFabric builds the shared rate-limiter and the REST gateway every
// read-path component goes through.
func (a *App) setupFabric() {
	a.limiter = ratelimit.New(ratelimit.Config{
		Logger:  a.logger,
		Classes: ratelimit.DefaultClassConfigs(),
	})

	a.gateway = gateway.New(gateway.Config{
		GammaBaseURL: a.cfg.GammaBaseURL,
		CLOBBaseURL:  a.cfg.CLOBBaseURL,
		DataBaseURL:  a.cfg.DataBaseURL,
		Limiter:      a.limiter,
		Logger:       a.logger,
	})
}

func (a *App) setupMarketData() {
	a.ws = websocket.New(websocket.Config{
		URL:                   a.cfg.WSURL,
		DialTimeout:           a.cfg.WSDialTimeout,
		PingInterval:          a.cfg.WSPingInterval,
		ReconnectInitialDelay: a.cfg.WSReconnectBaseDelay,
		ReconnectMaxDelay:     a.cfg.WSReconnectMaxDelay,
		MessageBufferSize:     a.cfg.WSMessageBufferSize,
		Logger:                a.logger,
	})

	a.books = books.New(&books.Config{
		Logger:         a.logger,
		MessageChannel: a.ws.Messages(),
		UpdateBuffer:   a.cfg.WSMessageBufferSize,
	})
}

func (a *App) setupStorage() error {
	if a.cfg.StorageMode == "postgres" {
		pg, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     a.cfg.PostgresHost,
			Port:     a.cfg.PostgresPort,
			User:     a.cfg.PostgresUser,
			Password: a.cfg.PostgresPass,
			Database: a.cfg.PostgresDB,
			SSLMode:  a.cfg.PostgresSSL,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("postgres storage: %w", err)
		}
		a.store = pg
	} else {
		a.store = storage.NewConsoleStorage(a.logger)
	}
	a.recorder = a.store
	return nil
}

// setupTrading builds the signing-side components. The engine requires a
// funded executor, so the whole group is skipped without a key.
func (a *App) setupTrading() error {
	if a.cfg.PrivateKey == "" {
		a.logger.Info("observer-mode",
			zap.String("reason", "no signing key configured"))
		return nil
	}

	trader, err := clob.New(clob.Config{
		BaseURL:       a.cfg.CLOBBaseURL,
		PrivateKey:    a.cfg.PrivateKey,
		FunderAddress: a.cfg.ProxyAddress,
		SignatureType: a.cfg.SignatureType,
		ChainID:       a.cfg.ChainID,
		Limiter:       a.limiter,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("clob client: %w", err)
	}
	a.trader = trader

	settler, err := settlement.New(settlement.Config{
		RPCURL:        a.cfg.RPCEndpoint(),
		PrivateKey:    a.cfg.PrivateKey,
		FunderAddress: a.cfg.ProxyAddress,
		ChainID:       a.cfg.ChainID,
		Limiter:       a.limiter,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("settlement client: %w", err)
	}
	a.settler = settler

	a.executor = arbitrage.NewExecutor(arbitrage.ExecutorConfig{
		BookTTL:     a.cfg.ArbBookTTL,
		MinTradeUSD: a.cfg.ArbMinTradeSize,
		MaxTradeUSD: a.cfg.ArbMaxTradeSize,
		SizeSafety:  a.cfg.ArbSizeSafetyFactor,
		Epsilon:     a.cfg.ArbProfitThreshold,
		Logger:      a.logger,
	}, trader, settler, a.books, settler.CollateralBalance, a.recorder)

	a.rebalancer = arbitrage.NewRebalancer(arbitrage.RebalancerConfig{
		TargetRatio:    a.cfg.ArbRebalanceTargetRatio,
		Tolerance:      a.cfg.ArbRebalanceTolerance,
		Cooldown:       a.cfg.ArbRebalanceCooldown,
		MaxConsecutive: a.cfg.ArbMaxConsecRebalances,
		Logger:         a.logger,
	}, settler)

	a.engine = arbitrage.NewEngine(arbitrage.EngineConfig{
		Epsilon:     a.cfg.ArbProfitThreshold,
		AutoExecute: true,
		Logger:      a.logger,
	}, a.ws, a.books, a.oppCache, a.executor, a.rebalancer, a.pairedPosition)

	a.logger.Info("trading-mode",
		zap.String("address", trader.Address()),
		zap.String("funder", trader.FunderAddress()),
		zap.Int("signature-type", a.cfg.SignatureType))
	return nil
}

// pairedPosition reports the on-chain matched pair size for a market. The
// engine consults it when sizing merges.
func (a *App) pairedPosition(ctx context.Context, conditionID string) (float64, error) {
	return a.settler.PairedBalance(ctx, common.HexToHash(conditionID))
}

func (a *App) setupScanner() {
	var balance arbitrage.BalanceFunc
	if a.settler != nil {
		balance = a.settler.CollateralBalance
	}

	a.scanner = arbitrage.NewScanner(arbitrage.ScannerConfig{
		Interval:     a.cfg.ArbScanInterval,
		MaxMarkets:   a.cfg.ArbMaxMarkets,
		MinVolume24h: a.cfg.ArbMinVolume,
		Epsilon:      a.cfg.ArbProfitThreshold,
		MaxTradeUSD:  a.cfg.ArbMaxTradeSize,
		SizeSafety:   a.cfg.ArbSizeSafetyFactor,
		Logger:       a.logger,
	}, a.gateway, a.oppCache, balance)
}

// setupIntelligence builds whale discovery, the follow auto-trader and the
// account manager, all sharing one file store under the state dir.
func (a *App) setupIntelligence() error {
	fileStore, err := storage.NewFileStore(a.cfg.StateDir)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	whaleCfg := whale.Config{
		MinTradeUSD:       a.cfg.WhaleMinTradeUSDC,
		MinTradesObserved: a.cfg.WhaleMinTrades,
		MinPnL:            a.cfg.WhaleMinPnL,
		MinWinRate:        a.cfg.WhaleMinWinRate,
		MinVolume:         a.cfg.WhaleMinVolume,
		AnalysisInterval:  a.cfg.WhaleAnalysisInterval,
		MaxBatch:          a.cfg.WhaleMaxBatch,
		CacheTTL:          a.cfg.WhaleCacheTTL,
	}

	a.whaleCache = whale.NewWalletCache(whaleCfg, a.gateway, fileStore, a.logger)
	a.whaleService = whale.New(whaleCfg, a.gateway, a.whaleCache, fileStore, a.logger)
	a.whaleService.SetFeed(a.gateway)

	autoCfg := follow.AutoTraderConfig{Paper: a.trader == nil}
	if a.trader != nil {
		a.autoTrader = follow.NewAutoTrader(autoCfg, a.trader, a.books, fileStore, a.logger)
	} else {
		a.autoTrader = follow.NewAutoTrader(autoCfg, nil, a.books, fileStore, a.logger)
	}

	accounts, err := account.NewManager(a.cfg.StateDir, a.logger)
	if err != nil {
		return fmt.Errorf("account manager: %w", err)
	}
	a.accounts = accounts
	return nil
}

func (a *App) setupHTTPServer() {
	httpCfg := httpserver.Config{
		Host:          a.cfg.APIHost,
		Port:          a.cfg.APIPort,
		CORSOrigin:    a.cfg.CORSOrigin,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		Markets:       a.gateway,
		Wallets:       a.gateway,
		Books:         a.books,
		Subscriber:    a.ws,
		Opportunities: a.oppCache,
		Whale:         a.whaleService,
		WhaleCache:    a.whaleCache,
		FollowSource:  a.gateway,
		AutoTrader:    a.autoTrader,
		Accounts:      a.accounts,
	}
	// Assigned separately so observer mode leaves the interface nil rather
	// than holding a typed nil pointer.
	if a.executor != nil {
		httpCfg.Executor = a.executor
	}

	a.httpServer = httpserver.New(httpCfg)
}
