// Package books maintains the live per-asset market state: normalized book
// snapshots, last trade prices and tick sizes, fed from the WebSocket market
// channel. Updates carry a monotonic exchange timestamp; anything older than
// the stored observation is dropped.
package books

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/pricing"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// PricePoint is the latest observed trade print for one asset.
type PricePoint struct {
	AssetID   string    `json:"assetId"`
	Price     float64   `json:"price"`
	Side      string    `json:"side"`
	Size      float64   `json:"size"`
	Timestamp int64     `json:"timestamp"`
	SeenAt    time.Time `json:"seenAt"`
}

// Update is published on every accepted book change.
type Update struct {
	Snapshot *types.BookSnapshot
	// PairAssetID is the sibling outcome token when the asset belongs to a
	// registered market pair, empty otherwise.
	PairAssetID string
}

// Manager owns the book and price caches for all subscribed assets.
type Manager struct {
	logger     *zap.Logger
	msgChan    <-chan *types.MarketMessage
	updateChan chan *Update
	depth      int

	mu        sync.RWMutex
	books     map[string]*types.BookSnapshot // key: asset id
	prices    map[string]*PricePoint
	tickSizes map[string]string
	lastTS    map[string]int64 // monotonic gate per asset
	pairs     map[string]pairInfo

	ctx context.Context
	wg  sync.WaitGroup
}

type pairInfo struct {
	conditionID string
	outcome     string
	pairAssetID string
}

// Config holds book manager configuration.
type Config struct {
	Logger         *zap.Logger
	MessageChannel <-chan *types.MarketMessage
	Depth          int
	UpdateBuffer   int
}

// New creates a book manager.
func New(cfg *Config) *Manager {
	depth := cfg.Depth
	if depth <= 0 {
		depth = pricing.DefaultDepth
	}
	buffer := cfg.UpdateBuffer
	if buffer <= 0 {
		buffer = 100000
	}

	return &Manager{
		logger:     cfg.Logger,
		msgChan:    cfg.MessageChannel,
		updateChan: make(chan *Update, buffer),
		depth:      depth,
		books:      make(map[string]*types.BookSnapshot),
		prices:     make(map[string]*PricePoint),
		tickSizes:  make(map[string]string),
		lastTS:     make(map[string]int64),
		pairs:      make(map[string]pairInfo),
	}
}

// RegisterPair teaches the manager which assets belong to one market so book
// updates can carry the sibling asset for paired recomputation.
func (m *Manager) RegisterPair(pair types.MarketPair) {
	m.mu.Lock()
	m.pairs[pair.YesAssetID] = pairInfo{conditionID: pair.ConditionID, outcome: "YES", pairAssetID: pair.NoAssetID}
	m.pairs[pair.NoAssetID] = pairInfo{conditionID: pair.ConditionID, outcome: "NO", pairAssetID: pair.YesAssetID}
	m.mu.Unlock()
}

// UnregisterPair drops the pair mapping and cached state for both assets.
func (m *Manager) UnregisterPair(pair types.MarketPair) {
	m.mu.Lock()
	for _, id := range []string{pair.YesAssetID, pair.NoAssetID} {
		delete(m.pairs, id)
		delete(m.books, id)
		delete(m.prices, id)
		delete(m.lastTS, id)
	}
	m.mu.Unlock()
}

// Start begins consuming market messages.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	m.logger.Info("book-manager-starting")

	m.wg.Add(1)
	go m.processMessages()

	return nil
}

func (m *Manager) processMessages() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("book-manager-stopping")
			return
		case msg, ok := <-m.msgChan:
			if !ok {
				m.logger.Info("message-channel-closed")
				return
			}
			m.handleMessage(msg)
		}
	}
}

func (m *Manager) handleMessage(msg *types.MarketMessage) {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	UpdatesTotal.WithLabelValues(msg.EventType).Inc()

	switch msg.EventType {
	case types.EventBook:
		m.handleBook(msg)
	case types.EventPriceChange:
		m.handlePriceChange(msg)
	case types.EventTickSizeChange:
		m.handleTickSizeChange(msg)
	case types.EventLastTradePrice:
		m.handleLastTrade(msg)
	default:
		m.logger.Debug("unknown-event-type", zap.String("event-type", msg.EventType))
	}
}

// accept applies the monotonic gate. Caller holds the write lock.
func (m *Manager) accept(assetID string, ts int64) bool {
	if ts != 0 && ts < m.lastTS[assetID] {
		UpdatesDroppedTotal.WithLabelValues("out_of_order").Inc()
		return false
	}
	if ts != 0 {
		m.lastTS[assetID] = ts
	}
	return true
}

func (m *Manager) handleBook(msg *types.MarketMessage) {
	raw := &types.RawOrderbook{
		Market:  msg.Market,
		AssetID: msg.AssetID,
		Bids:    msg.Bids,
		Asks:    msg.Asks,
	}

	m.mu.RLock()
	info := m.pairs[msg.AssetID]
	m.mu.RUnlock()

	snap := pricing.NormalizeBook(raw, firstNonEmpty(info.conditionID, msg.Market), info.outcome, m.depth, time.Now())
	snap.Sequence = msg.Timestamp

	m.mu.Lock()
	if !m.accept(msg.AssetID, msg.Timestamp) {
		m.mu.Unlock()
		m.logger.Debug("out-of-order-book-dropped",
			zap.String("asset-id", msg.AssetID),
			zap.Int64("timestamp", msg.Timestamp))
		return
	}
	m.books[msg.AssetID] = snap
	SnapshotsTracked.Set(float64(len(m.books)))
	m.mu.Unlock()

	m.logger.Debug("book-snapshot-updated",
		zap.String("asset-id", msg.AssetID),
		zap.Int("bids", len(snap.Bids)),
		zap.Int("asks", len(snap.Asks)))

	m.publish(snap, info.pairAssetID)
}

// handlePriceChange folds the per-asset entries of a price_change event into
// the cached snapshots. Only top-of-book moves; deeper levels keep their last
// full-snapshot values.
func (m *Manager) handlePriceChange(msg *types.MarketMessage) {
	for i := range msg.PriceChanges {
		pc := &msg.PriceChanges[i]
		assetID := firstNonEmpty(pc.AssetID, msg.AssetID)

		bestBid, errB := strconv.ParseFloat(pc.BestBid, 64)
		bestAsk, errA := strconv.ParseFloat(pc.BestAsk, 64)

		m.mu.Lock()
		snap, exists := m.books[assetID]
		if !exists {
			m.mu.Unlock()
			continue
		}
		if !m.accept(assetID, msg.Timestamp) {
			m.mu.Unlock()
			continue
		}

		updated := *snap
		updated.Bids = append([]types.BookLevel(nil), snap.Bids...)
		updated.Asks = append([]types.BookLevel(nil), snap.Asks...)

		if errB == nil && bestBid > 0 && len(updated.Bids) > 0 {
			updated.Bids[0].Price = bestBid
			recomputeCum(updated.Bids)
		}
		if errA == nil && bestAsk > 0 && len(updated.Asks) > 0 {
			updated.Asks[0].Price = bestAsk
			recomputeCum(updated.Asks)
		}
		updated.Sequence = msg.Timestamp
		updated.FetchedAt = time.Now()

		m.books[assetID] = &updated
		info := m.pairs[assetID]
		m.mu.Unlock()

		m.publish(&updated, info.pairAssetID)
	}
}

func (m *Manager) handleTickSizeChange(msg *types.MarketMessage) {
	if msg.NewTickSize == "" {
		return
	}
	m.mu.Lock()
	m.tickSizes[msg.AssetID] = msg.NewTickSize
	m.mu.Unlock()

	m.logger.Info("tick-size-changed",
		zap.String("asset-id", msg.AssetID),
		zap.String("old", msg.OldTickSize),
		zap.String("new", msg.NewTickSize))
}

func (m *Manager) handleLastTrade(msg *types.MarketMessage) {
	price, err := strconv.ParseFloat(msg.Price, 64)
	if err != nil {
		return
	}
	size, _ := strconv.ParseFloat(msg.Size, 64)

	m.mu.Lock()
	if !m.accept(msg.AssetID, msg.Timestamp) {
		m.mu.Unlock()
		return
	}
	m.prices[msg.AssetID] = &PricePoint{
		AssetID:   msg.AssetID,
		Price:     price,
		Side:      msg.Side,
		Size:      size,
		Timestamp: msg.Timestamp,
		SeenAt:    time.Now(),
	}
	m.mu.Unlock()
}

func (m *Manager) publish(snap *types.BookSnapshot, pairAssetID string) {
	select {
	case m.updateChan <- &Update{Snapshot: snap, PairAssetID: pairAssetID}:
	default:
		m.logger.Warn("book-update-channel-full",
			zap.String("asset-id", snap.AssetID),
			zap.Int("buffer-size", cap(m.updateChan)))
		UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

// GetBook returns a copy of the cached snapshot for an asset.
func (m *Manager) GetBook(assetID string) (*types.BookSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, exists := m.books[assetID]
	if !exists {
		return nil, false
	}
	cp := *snap
	return &cp, true
}

// GetFreshBook returns the snapshot only when it is younger than ttl.
func (m *Manager) GetFreshBook(assetID string, ttl time.Duration) (*types.BookSnapshot, bool) {
	snap, ok := m.GetBook(assetID)
	if !ok || snap.Stale(time.Now(), ttl) {
		return nil, false
	}
	return snap, true
}

// GetPrice returns the latest trade print for an asset.
func (m *Manager) GetPrice(assetID string) (*PricePoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.prices[assetID]
	if !exists {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// GetTickSize returns the last observed tick size for an asset, if any.
func (m *Manager) GetTickSize(assetID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.tickSizes[assetID]
	return ts, ok
}

// Updates returns the channel of accepted book updates.
func (m *Manager) Updates() <-chan *Update {
	return m.updateChan
}

// Close waits for the processing loop and closes the update channel.
func (m *Manager) Close() error {
	m.logger.Info("closing-book-manager")
	m.wg.Wait()
	close(m.updateChan)
	m.logger.Info("book-manager-closed")
	return nil
}

func recomputeCum(levels []types.BookLevel) {
	cum := 0.0
	for i := range levels {
		cum += levels[i].Price * levels[i].Size
		levels[i].CumUSD = cum
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
