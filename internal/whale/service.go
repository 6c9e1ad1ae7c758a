package whale

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const watchedFile = "watched_addresses.json"

// recentTradeCap bounds the observed-trades ring served over HTTP.
const recentTradeCap = 200

// tradeFeed is the slice of the REST gateway the global-trade poller needs.
type tradeFeed interface {
	GlobalTrades(ctx context.Context, limit int) ([]types.ActivityEvent, error)
}

// Service runs whale discovery: qualifying trades from the public stream
// accumulate observations per wallet, repeat offenders get queued for a full
// history analysis, and wallets clearing the thresholds land in the watched
// index with their metrics prefetched into the cache.
type Service struct {
	source activitySource
	feed   tradeFeed
	cache  *WalletCache
	store  *storage.FileStore
	logger *zap.Logger

	cfgMu sync.RWMutex
	cfg   Config

	mu           sync.Mutex
	observations map[string]*Observation
	watched      map[string]*Record
	recentTrades []ObservedTrade
	running      bool

	queueMu   sync.Mutex
	queue     []string
	queuedSet map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the discovery service. store may be nil for memory-only
// operation; feed may be nil when trades are fed through Observe directly.
func New(cfg Config, source activitySource, cache *WalletCache, store *storage.FileStore, logger *zap.Logger) *Service {
	cfg.ApplyDefaults()
	s := &Service{
		source:       source,
		cache:        cache,
		store:        store,
		logger:       logger,
		cfg:          cfg,
		observations: make(map[string]*Observation),
		watched:      make(map[string]*Record),
		queuedSet:    make(map[string]bool),
	}
	s.loadWatched()
	return s
}

// SetFeed wires the global trade stream the poller observes.
func (s *Service) SetFeed(feed tradeFeed) { s.feed = feed }

func (s *Service) loadWatched() {
	if s.store == nil {
		return
	}
	var persisted map[string]*Record
	found, err := s.store.Load(watchedFile, &persisted)
	if err != nil {
		s.logger.Warn("watched-index-load-failed", zap.Error(err))
		return
	}
	if found {
		s.watched = persisted
		s.logger.Info("watched-index-loaded", zap.Int("whales", len(persisted)))
	}
}

func (s *Service) persistWatched() {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	snapshot := make(map[string]*Record, len(s.watched))
	for k, v := range s.watched {
		snapshot[k] = v
	}
	s.mu.Unlock()

	if err := s.store.Save(watchedFile, snapshot); err != nil {
		s.logger.Error("watched-index-persist-failed", zap.Error(err))
	}
}

// Start launches the analyzer loop. Idempotent while running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cfg := s.config()
	s.logger.Info("whale-discovery-starting",
		zap.Duration("analysis-interval", cfg.AnalysisInterval),
		zap.Int("max-batch", cfg.MaxBatch),
		zap.Float64("min-trade-usd", cfg.MinTradeUSD))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(cfg.AnalysisInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				s.logger.Info("whale-discovery-stopping")
				return
			case <-ticker.C:
				s.analyzeBatch(runCtx)
			}
		}
	}()

	if s.feed != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pollTrades(runCtx, cfg.FeedInterval)
		}()
	}
}

// pollTrades observes the public trade stream, deduplicating across polls.
func (s *Service) pollTrades(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		trades, err := s.feed.GlobalTrades(ctx, 100)
		if err != nil {
			s.logger.Warn("global-trades-poll-failed", zap.Error(err))
			continue
		}
		for i := range trades {
			fp := trades[i].Fingerprint()
			if seen[fp] {
				continue
			}
			seen[fp] = true
			s.Observe(&trades[i])
		}
		// The dedupe set only needs to cover overlap between adjacent
		// polls.
		if len(seen) > 10000 {
			seen = make(map[string]bool)
		}
	}
}

// Stop halts the analyzer. The pending queue is kept for the next start.
func (s *Service) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the analyzer loop is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Observe feeds one public trade through the observation gate. Wallets
// crossing the observation threshold are queued for analysis.
func (s *Service) Observe(event *types.ActivityEvent) {
	cfg := s.config()
	if event.Type != types.ActivityTrade || event.UsdcSize < cfg.MinTradeUSD {
		return
	}
	address := strings.ToLower(event.ProxyWallet)
	if address == "" {
		return
	}

	s.mu.Lock()
	obs, ok := s.observations[address]
	if !ok {
		obs = &Observation{Address: address, FirstSeen: event.Time()}
		s.observations[address] = obs
	}
	obs.TradesObserved++
	obs.VolumeObserved += event.UsdcSize
	obs.LastSeen = event.Time()
	reached := obs.TradesObserved >= cfg.MinTradesObserved

	s.recentTrades = append(s.recentTrades, ObservedTrade{
		Address:         address,
		ConditionID:     event.ConditionID,
		Title:           event.Title,
		Side:            event.Side,
		Size:            event.Size,
		Price:           event.Price,
		UsdcSize:        event.UsdcSize,
		TransactionHash: event.TransactionHash,
		Timestamp:       event.Time(),
	})
	if len(s.recentTrades) > recentTradeCap {
		s.recentTrades = s.recentTrades[len(s.recentTrades)-recentTradeCap:]
	}
	s.mu.Unlock()

	TradesObservedTotal.Inc()
	if reached {
		s.enqueue(address)
	}
}

// enqueue adds an address to the unbounded analysis queue, deduplicated.
func (s *Service) enqueue(address string) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.queuedSet[address] {
		return
	}
	s.queuedSet[address] = true
	s.queue = append(s.queue, address)
	AnalysisQueueDepth.Set(float64(len(s.queue)))
}

// analyzeBatch pulls up to MaxBatch addresses and classifies each.
func (s *Service) analyzeBatch(ctx context.Context) {
	cfg := s.config()

	s.queueMu.Lock()
	n := min(cfg.MaxBatch, len(s.queue))
	batch := make([]string, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	for _, address := range batch {
		delete(s.queuedSet, address)
	}
	AnalysisQueueDepth.Set(float64(len(s.queue)))
	s.queueMu.Unlock()

	for _, address := range batch {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.analyze(ctx, address)
	}
}

// analyze fetches a wallet's history and promotes it when the all-window
// metrics clear every threshold.
func (s *Service) analyze(ctx context.Context, address string) {
	cfg := s.config()
	AnalysesTotal.Inc()

	events, err := s.source.GetAllActivity(ctx, address, cfg.MaxActivityRows, "")
	if err != nil {
		s.logger.Warn("whale-analysis-fetch-failed",
			zap.String("address", address),
			zap.Error(err))
		return
	}
	positions, err := s.source.Positions(ctx, address)
	if err != nil {
		positions = nil
	}

	capped := len(events) >= cfg.MaxActivityRows
	windows := computeWindows(events, positions, time.Now(), capped)

	all := windows[WindowAll]
	if all == nil {
		// History deeper than the fetch cap; fall back to the widest window
		// that survived.
		for i := len(Windows) - 2; i >= 0; i-- {
			if windows[Windows[i]] != nil {
				all = windows[Windows[i]]
				break
			}
		}
	}
	if all == nil {
		s.logger.Debug("whale-analysis-no-usable-window", zap.String("address", address))
		return
	}

	if all.PnL < cfg.MinPnL || all.WinRate < cfg.MinWinRate || all.Volume < cfg.MinVolume {
		s.logger.Debug("wallet-below-thresholds",
			zap.String("address", address),
			zap.Float64("pnl", all.PnL),
			zap.Float64("win-rate", all.WinRate),
			zap.Float64("volume", all.Volume))
		return
	}

	record := &Record{
		Address:    address,
		PnL:        all.PnL,
		Volume:     all.Volume,
		TradeCount: all.TradeCount,
		WinRate:    all.WinRate,
		SmartScore: all.SmartScore,
		PromotedAt: time.Now(),
	}

	s.mu.Lock()
	_, known := s.watched[address]
	s.watched[address] = record
	s.mu.Unlock()

	if !known {
		WhalesPromotedTotal.Inc()
		s.logger.Info("whale-promoted",
			zap.String("address", address),
			zap.Float64("pnl", all.PnL),
			zap.Float64("win-rate", all.WinRate),
			zap.Float64("smart-score", all.SmartScore))
	}
	s.persistWatched()

	// Prefetch the full window set so HTTP consumers see metrics without
	// waiting a cache cycle.
	if s.cache != nil {
		s.cache.Enqueue(address)
	}
}

// Whales returns the watched index.
func (s *Service) Whales() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.watched))
	for _, r := range s.watched {
		out = append(out, r)
	}
	return out
}

// RecentTrades returns the qualifying-trade ring, newest last.
func (s *Service) RecentTrades() []ObservedTrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ObservedTrade(nil), s.recentTrades...)
}

// Config returns the current thresholds.
func (s *Service) Config() Config { return s.config() }

// SetConfig replaces the thresholds. Interval changes apply on next start.
func (s *Service) SetConfig(cfg Config) {
	cfg.ApplyDefaults()
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.logger.Info("whale-config-updated",
		zap.Float64("min-trade-usd", cfg.MinTradeUSD),
		zap.Float64("min-pnl", cfg.MinPnL),
		zap.Float64("min-win-rate", cfg.MinWinRate))
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// QueueDepth returns the number of addresses waiting for analysis.
func (s *Service) QueueDepth() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}
