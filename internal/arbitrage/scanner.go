package arbitrage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/pricing"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// marketSource is the slice of the REST gateway the scanner needs.
type marketSource interface {
	TrendingMarkets(ctx context.Context, limit int) ([]types.Market, error)
	PairBooks(ctx context.Context, pair types.MarketPair) (yes, no *types.BookSnapshot, err error)
}

// BalanceFunc reports the wallet's spendable collateral in USDC.
type BalanceFunc func(ctx context.Context) (float64, error)

// ScannerConfig holds deep-scanner tuning.
type ScannerConfig struct {
	Interval     time.Duration // full-universe sweep cadence
	MaxMarkets   int
	MinVolume24h float64
	Epsilon      float64 // profit threshold for the predicate
	MaxTradeUSD  float64
	SizeSafety   float64
	ChunkSize    int
	ChunkPause   time.Duration
	Logger       *zap.Logger
}

func (c *ScannerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxMarkets <= 0 {
		c.MaxMarkets = 500
	}
	if c.MinVolume24h <= 0 {
		c.MinVolume24h = 100
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 5
	}
	if c.SizeSafety <= 0 || c.SizeSafety > 1 {
		c.SizeSafety = 0.8
	}
	if c.ChunkPause <= 0 {
		c.ChunkPause = 2 * time.Second
	}
}

// Scanner sweeps the active-market universe for mispriced pairs.
type Scanner struct {
	source  marketSource
	cache   *OpportunityCache
	balance BalanceFunc
	cfg     ScannerConfig
	logger  *zap.Logger

	gen atomic.Uint64
	wg  sync.WaitGroup
}

// NewScanner creates a deep scanner feeding the given cache. balance may be
// nil; opportunities are then sized by book depth and config cap only.
func NewScanner(cfg ScannerConfig, source marketSource, cache *OpportunityCache, balance BalanceFunc) *Scanner {
	cfg.applyDefaults()
	return &Scanner{
		source:  source,
		cache:   cache,
		balance: balance,
		cfg:     cfg,
		logger:  cfg.Logger,
	}
}

// Start launches the scan loop. The first sweep runs immediately.
func (s *Scanner) Start(ctx context.Context) {
	s.logger.Info("deep-scanner-starting",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("max-markets", s.cfg.MaxMarkets),
		zap.Float64("min-volume-24h", s.cfg.MinVolume24h))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.ScanOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("deep-scanner-stopping")
				return
			case <-ticker.C:
				s.ScanOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the scan loop has exited.
func (s *Scanner) Wait() { s.wg.Wait() }

// ScanOnce runs one full sweep: fetch, filter, evaluate in chunks, then
// evict everything the cycle did not re-find.
func (s *Scanner) ScanOnce(ctx context.Context) {
	start := time.Now()
	gen := s.gen.Add(1)

	markets, err := s.source.TrendingMarkets(ctx, s.cfg.MaxMarkets)
	if err != nil {
		s.logger.Error("scan-market-fetch-failed", zap.Error(err))
		ScanErrorsTotal.Inc()
		return
	}

	pairs := make([]types.MarketPair, 0, len(markets))
	for i := range markets {
		m := &markets[i]
		if m.Volume24h < s.cfg.MinVolume24h {
			continue
		}
		if pair, ok := types.PairFromMarket(m); ok {
			pairs = append(pairs, pair)
		}
	}

	balance := s.fetchBalance(ctx)

	for offset := 0; offset < len(pairs); offset += s.cfg.ChunkSize {
		end := min(offset+s.cfg.ChunkSize, len(pairs))

		var chunkWG sync.WaitGroup
		for _, pair := range pairs[offset:end] {
			chunkWG.Add(1)
			go func(pair types.MarketPair) {
				defer chunkWG.Done()
				s.evaluatePair(ctx, pair, gen, balance)
			}(pair)
		}
		chunkWG.Wait()

		if end < len(pairs) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.ChunkPause):
			}
		}
	}

	evicted := s.cache.Sweep(gen)
	ScanDurationSeconds.Observe(time.Since(start).Seconds())
	s.logger.Info("scan-cycle-complete",
		zap.Int("markets", len(pairs)),
		zap.Int("evicted", evicted),
		zap.Int("live", len(s.cache.Snapshot())),
		zap.Duration("elapsed", time.Since(start)))
}

func (s *Scanner) fetchBalance(ctx context.Context) float64 {
	if s.balance == nil {
		return 0
	}
	balance, err := s.balance(ctx)
	if err != nil {
		s.logger.Warn("scan-balance-read-failed", zap.Error(err))
		return 0
	}
	return balance
}

func (s *Scanner) evaluatePair(ctx context.Context, pair types.MarketPair, gen uint64, balance float64) {
	MarketsScannedTotal.Inc()

	yes, no, err := s.source.PairBooks(ctx, pair)
	if err != nil {
		s.logger.Debug("scan-book-fetch-failed",
			zap.String("condition-id", pair.ConditionID),
			zap.Error(err))
		ScanErrorsTotal.Inc()
		return
	}

	sig, ok := evaluateBooks(yes, no, s.cfg.Epsilon)
	if !ok {
		return
	}

	opp := NewOpportunity(pair, sig, yes, no)
	sizeOpportunity(opp, balance, s.cfg.MaxTradeUSD, s.cfg.SizeSafety)
	s.cache.Upsert(opp, gen)
	OpportunitiesDetectedTotal.WithLabelValues(string(opp.Type), "scan").Inc()
	s.logger.Info("arbitrage-opportunity-detected",
		zap.String("market-slug", pair.Slug),
		zap.String("type", string(opp.Type)),
		zap.Float64("profit-rate", opp.ProfitRate),
		zap.Float64("recommended-size", opp.RecommendedSize))
}

// evaluateBooks runs the predicate over a book pair. Markets missing a side
// on either book are skipped: every effective price needs both a bid and an
// ask through the mirror identity.
func evaluateBooks(yes, no *types.BookSnapshot, epsilon float64) (*pricing.ArbSignal, bool) {
	yesAsk, yesBid := yes.BestAsk(), yes.BestBid()
	noAsk, noBid := no.BestAsk(), no.BestBid()
	if yesAsk == nil || yesBid == nil || noAsk == nil || noBid == nil {
		return nil, false
	}

	sig := pricing.CheckArbitrage(yesAsk.Price, yesBid.Price, noAsk.Price, noBid.Price, epsilon)
	if sig == nil {
		return nil, false
	}
	return sig, true
}

// sizeOpportunity fills in the balance cap and the recommended size. The
// executor re-derives the final size at execution time against fresh books.
func sizeOpportunity(opp *Opportunity, balanceUSD, maxTradeUSD, safety float64) {
	if balanceUSD > 0 {
		opp.MaxBalanceSize = balanceUSD / opp.costPerShare()
	}
	var configMax float64
	if maxTradeUSD > 0 {
		configMax = maxTradeUSD / opp.costPerShare()
	}
	opp.RecommendedSize = recommendSize(opp.MaxOrderbookSize, opp.MaxBalanceSize, configMax, safety)
}

// recommendSize applies the sizing rule: the tightest of the book, the
// balance, and the configured cap, scaled by the safety factor. Zero caps
// are treated as absent.
func recommendSize(bookSize, balanceSize, configMax, safety float64) float64 {
	size := bookSize
	if balanceSize > 0 {
		size = min(size, balanceSize)
	}
	if configMax > 0 {
		size = min(size, configMax)
	}
	return size * safety
}
