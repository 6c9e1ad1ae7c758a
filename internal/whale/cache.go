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

const cacheFile = "whale_cache.json"

// activitySource is the slice of the REST gateway the cache needs.
type activitySource interface {
	GetAllActivity(ctx context.Context, address string, maxRows int, typeFilter string) ([]types.ActivityEvent, error)
	Positions(ctx context.Context, address string) ([]types.Position, error)
}

// WalletCache holds per-wallet window metrics with a TTL. Refreshes run
// through a deduplicated queue, one at a time with a pause between them, so
// bulk lookups cannot stampede the data API.
type WalletCache struct {
	source activitySource
	store  *storage.FileStore
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*CacheEntry

	queueMu sync.Mutex
	pending map[string]bool
	queue   []string
	wake    chan struct{}

	wg sync.WaitGroup
}

// NewWalletCache creates the cache, loading any persisted entries. store may
// be nil for a memory-only cache.
func NewWalletCache(cfg Config, source activitySource, store *storage.FileStore, logger *zap.Logger) *WalletCache {
	cfg.ApplyDefaults()
	c := &WalletCache{
		source:  source,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*CacheEntry),
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
	}
	c.load()
	return c
}

func (c *WalletCache) load() {
	if c.store == nil {
		return
	}
	var persisted map[string]*CacheEntry
	found, err := c.store.Load(cacheFile, &persisted)
	if err != nil {
		c.logger.Warn("whale-cache-load-failed", zap.Error(err))
		return
	}
	if found {
		c.entries = persisted
		c.logger.Info("whale-cache-loaded", zap.Int("entries", len(persisted)))
	}
}

func (c *WalletCache) persist() {
	if c.store == nil {
		return
	}
	c.mu.RLock()
	snapshot := make(map[string]*CacheEntry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	c.mu.RUnlock()

	if err := c.store.Save(cacheFile, snapshot); err != nil {
		c.logger.Error("whale-cache-persist-failed", zap.Error(err))
	}
}

// Start launches the serialized updater.
func (c *WalletCache) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.wake:
			}

			for {
				address, ok := c.pop()
				if !ok {
					break
				}
				c.refresh(ctx, address)

				select {
				case <-ctx.Done():
					return
				case <-time.After(c.cfg.CachePause):
				}
			}
		}
	}()
}

// Wait blocks until the updater has exited.
func (c *WalletCache) Wait() { c.wg.Wait() }

// Enqueue schedules a refresh. An address already waiting is not re-queued.
func (c *WalletCache) Enqueue(address string) {
	address = strings.ToLower(address)

	c.queueMu.Lock()
	if c.pending[address] {
		c.queueMu.Unlock()
		return
	}
	c.pending[address] = true
	c.queue = append(c.queue, address)
	c.queueMu.Unlock()

	CacheQueueDepth.Inc()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *WalletCache) pop() (string, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		return "", false
	}
	address := c.queue[0]
	c.queue = c.queue[1:]
	delete(c.pending, address)
	CacheQueueDepth.Dec()
	return address, true
}

// refresh fetches a wallet's history and rebuilds its entry. A fetch that
// yields nothing never overwrites a non-empty entry: zeroing out a wallet we
// have real numbers for would poison every consumer until the next success.
func (c *WalletCache) refresh(ctx context.Context, address string) {
	events, err := c.source.GetAllActivity(ctx, address, c.cfg.MaxActivityRows, "")
	if err != nil {
		c.logger.Warn("whale-refresh-fetch-failed",
			zap.String("address", address),
			zap.Error(err))
		CacheRefreshesTotal.WithLabelValues("error").Inc()
		return
	}
	positions, err := c.source.Positions(ctx, address)
	if err != nil {
		c.logger.Debug("whale-position-fetch-failed",
			zap.String("address", address),
			zap.Error(err))
		positions = nil
	}

	capped := len(events) >= c.cfg.MaxActivityRows
	entry := &CacheEntry{
		Address:   address,
		UpdatedAt: time.Now(),
		Windows:   computeWindows(events, positions, time.Now(), capped),
	}

	c.mu.Lock()
	prev, exists := c.entries[address]
	if entry.empty() && exists && !prev.empty() {
		c.mu.Unlock()
		c.logger.Warn("whale-refresh-empty-not-overwriting",
			zap.String("address", address),
			zap.Time("kept-updated-at", prev.UpdatedAt))
		CacheRefreshesTotal.WithLabelValues("empty_skipped").Inc()
		return
	}
	c.entries[address] = entry
	c.mu.Unlock()

	CacheRefreshesTotal.WithLabelValues("ok").Inc()
	c.persist()
}

// Get returns a wallet's entry when present and fresh.
func (c *WalletCache) Get(address string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[strings.ToLower(address)]
	if !ok || entry.Expired(time.Now(), c.cfg.CacheTTL) {
		return nil, false
	}
	return entry, true
}

// Bulk returns the fresh entries for the given addresses and enqueues a
// refresh for every miss.
func (c *WalletCache) Bulk(addresses []string) map[string]*CacheEntry {
	out := make(map[string]*CacheEntry, len(addresses))
	for _, address := range addresses {
		if entry, ok := c.Get(address); ok {
			out[strings.ToLower(address)] = entry
			continue
		}
		c.Enqueue(address)
	}
	return out
}

// Size returns the number of cached wallets, fresh or not.
func (c *WalletCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
