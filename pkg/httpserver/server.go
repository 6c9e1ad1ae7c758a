// Package httpserver exposes the REST and WebSocket surface: market data,
// arbitrage scan/execute, wallet intelligence, whale discovery controls,
// follow-trading controls and account management.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/account"
	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/internal/books"
	"github.com/dmarch/polymarket-trader/internal/follow"
	"github.com/dmarch/polymarket-trader/internal/whale"
	"github.com/dmarch/polymarket-trader/pkg/healthprobe"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// MarketAPI is the market-data slice of the REST gateway.
type MarketAPI interface {
	TrendingMarkets(ctx context.Context, limit int) ([]types.Market, error)
	MarketByID(ctx context.Context, id string) (*types.Market, error)
	MarketByConditionID(ctx context.Context, conditionID string) (*types.Market, error)
	ProcessedBook(ctx context.Context, assetID, conditionID, outcome string) (*types.BookSnapshot, error)
	PriceHistory(ctx context.Context, assetID, interval string, fidelity int) ([]types.PriceHistoryPoint, error)
	MarketTrades(ctx context.Context, conditionID string, limit int) ([]types.ActivityEvent, error)
}

// WalletAPI is the wallet-intelligence slice of the REST gateway.
type WalletAPI interface {
	Leaderboard(ctx context.Context, board, window string, limit int) ([]types.LeaderboardEntry, error)
	Positions(ctx context.Context, address string) ([]types.Position, error)
	GetAllActivity(ctx context.Context, address string, maxRows int, typeFilter string) ([]types.ActivityEvent, error)
	UserTrades(ctx context.Context, address string, maxRows int) ([]types.ActivityEvent, error)
}

// executor runs one cached opportunity.
type executor interface {
	Execute(ctx context.Context, opp *arbitrage.Opportunity) (*types.ExecutionResult, error)
}

// followSource feeds follow runners with target-wallet activity.
type followSource interface {
	GetAllActivity(ctx context.Context, address string, maxRows int, typeFilter string) ([]types.ActivityEvent, error)
}

// marketSubscriber manages live exchange subscriptions for stream clients.
type marketSubscriber interface {
	Subscribe(ctx context.Context, assetIDs []string) error
	Unsubscribe(ctx context.Context, assetIDs []string) error
}

// Config holds server configuration and the components the routes expose.
// Nil components disable their route group.
type Config struct {
	Host       string
	Port       string
	CORSOrigin string

	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker

	Markets MarketAPI
	Wallets WalletAPI

	Books         *books.Manager
	Subscriber    marketSubscriber
	Opportunities *arbitrage.OpportunityCache
	Executor      executor

	Whale      *whale.Service
	WhaleCache *whale.WalletCache

	FollowSource followSource
	AutoTrader   *follow.AutoTrader

	Accounts *account.Manager
}

// Server is the HTTP surface.
type Server struct {
	server *http.Server
	cfg    Config
	logger *zap.Logger

	// background context for components started from handlers (whale
	// discovery, follow runners); canceled on shutdown
	runCtx context.Context
	cancel context.CancelFunc

	followMu sync.Mutex
	runner   *follow.Runner
}

// New builds the router and server.
func New(cfg Config) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		runCtx: runCtx,
		cancel: cancel,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.cors)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	if cfg.HealthChecker != nil {
		r.Get("/health", cfg.HealthChecker.Health())
		r.Get("/ready", cfg.HealthChecker.Ready())
	}

	if cfg.Markets != nil {
		r.Route("/markets", func(r chi.Router) {
			r.Get("/trending", s.handleTrendingMarkets)
			r.Get("/{id}", s.handleMarket)
			r.Get("/{id}/orderbook", s.handleOrderbook)
			r.Get("/{id}/klines", s.handleKlines)
		})
	}
	if cfg.Opportunities != nil {
		r.Get("/arbitrage/scan", s.handleArbitrageScan)
		if cfg.Executor != nil {
			r.Post("/arbitrage/execute", s.handleArbitrageExecute)
		}
	}
	if cfg.Wallets != nil {
		r.Route("/wallets", func(r chi.Router) {
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/{addr}/profile", s.handleWalletProfile)
			r.Get("/{addr}/positions", s.handleWalletPositions)
			r.Get("/{addr}/activity", s.handleWalletActivity)
		})
	}
	if cfg.Whale != nil {
		r.Route("/whale", func(r chi.Router) {
			r.Post("/start", s.handleWhaleStart)
			r.Post("/stop", s.handleWhaleStop)
			r.Get("/status", s.handleWhaleStatus)
			r.Get("/whales", s.handleWhaleList)
			r.Get("/trades", s.handleWhaleTrades)
			r.Get("/config", s.handleWhaleGetConfig)
			r.Put("/config", s.handleWhaleSetConfig)
			r.Post("/cache/refresh", s.handleWhaleCacheRefresh)
			r.Get("/cache/bulk", s.handleWhaleCacheBulk)
		})
	}
	if cfg.AutoTrader != nil && cfg.FollowSource != nil {
		r.Route("/follow-activity", func(r chi.Router) {
			r.Post("/start", s.handleFollowStart)
			r.Post("/stop", s.handleFollowStop)
			r.Post("/confirm", s.handleFollowConfirm)
			r.Get("/status", s.handleFollowStatus)
			r.Get("/activities", s.handleFollowActivities)
			r.Get("/suggestions", s.handleFollowSuggestions)
			r.Post("/autotrade/config", s.handleAutoTradeConfig)
		})
		r.Route("/autotrade", func(r chi.Router) {
			r.Get("/status", s.handleAutoTradeStatus)
			r.Get("/paper/status", s.handlePaperStatus)
			r.Get("/paper/history", s.handlePaperHistory)
			r.Get("/paper/summary", s.handlePaperSummary)
			r.Get("/pending", s.handleAutoTradePending)
			r.Get("/history", s.handleAutoTradeHistory)
		})
	}
	if cfg.Accounts != nil {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleAccountList)
			r.Post("/", s.handleAccountCreate)
			r.Patch("/{id}", s.handleAccountRename)
			r.Delete("/{id}", s.handleAccountDelete)
		})
	}
	if cfg.Books != nil && cfg.Markets != nil {
		r.Get("/ws/market/{conditionId}", s.handleMarketStream)
	}

	s.server = &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until Shutdown. Blocking.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown stops handler-started components and drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")
	s.cancel()

	s.followMu.Lock()
	if s.runner != nil {
		s.runner.Stop()
		s.cfg.AutoTrader.Stop()
	}
	s.followMu.Unlock()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http-server-shutdown-complete")
	return nil
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response-encode-failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
