// Package websocket maintains the market-channel subscription to the CLOB:
// one connection, dynamic subscribe/unsubscribe by asset id, reconnect with
// backoff and full resubscribe, and demultiplexed delivery of book,
// price_change, tick_size_change and last_trade_price events.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Manager manages a single WebSocket connection to the CLOB market channel.
type Manager struct {
	url          string
	conn         *websocket.Conn
	logger       *zap.Logger
	reconnectMgr *ReconnectManager
	config       Config
	messageChan  chan *types.MarketMessage
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	subscribed   map[string]bool // asset ids with an active subscription
	connected    atomic.Bool
	lastPongTime atomic.Int64
	connectedAt  atomic.Int64
}

// Config holds WebSocket manager configuration.
type Config struct {
	URL                   string
	DialTimeout           time.Duration
	PingInterval          time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectBackoffMult  float64
	MessageBufferSize     int
	Logger                *zap.Logger
}

// New creates a new WebSocket manager.
func New(cfg Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.ReconnectBackoffMult <= 1.0 {
		cfg.ReconnectBackoffMult = 2.0
	}
	reconnectCfg := ReconnectConfig{
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectBackoffMult,
		JitterPercent:     0.2,
	}

	return &Manager{
		url:          cfg.URL,
		logger:       cfg.Logger,
		reconnectMgr: NewReconnectManager(reconnectCfg, cfg.Logger),
		config:       cfg,
		messageChan:  make(chan *types.MarketMessage, cfg.MessageBufferSize),
		ctx:          ctx,
		cancel:       cancel,
		subscribed:   make(map[string]bool),
	}
}

// Start dials the endpoint and spawns the read, ping and reconnect loops.
func (m *Manager) Start() error {
	m.logger.Info("websocket-manager-starting", zap.String("url", m.url))

	err := m.connect(m.ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	m.wg.Add(3)
	go m.readLoop()
	go m.pingLoop()
	go m.reconnectLoop()

	return nil
}

// connect establishes a WebSocket connection.
func (m *Manager) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.DialTimeout,
	}

	m.logger.Info("connecting-to-websocket", zap.String("url", m.url))

	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		m.lastPongTime.Store(time.Now().Unix())
		return nil
	})

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	now := time.Now()
	m.connected.Store(true)
	m.lastPongTime.Store(now.Unix())
	m.connectedAt.Store(now.Unix())
	ActiveConnections.Set(1)

	m.logger.Info("websocket-connected")

	return nil
}

// Subscribe subscribes to a list of asset ids. Already-subscribed ids are
// skipped; a write failure rolls the subscription state back.
func (m *Manager) Subscribe(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	newAssets := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if !m.subscribed[id] {
			newAssets = append(newAssets, id)
			m.subscribed[id] = true
		}
	}

	if len(newAssets) == 0 {
		m.mu.Unlock()
		m.logger.Debug("all-assets-already-subscribed")
		return nil
	}

	// The exchange wants a "type: market" message on a fresh channel and an
	// "operation: subscribe" message when adding to a live one.
	var subscribeMsg map[string]interface{}
	if len(m.subscribed) == len(newAssets) {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newAssets,
			"type":       "market",
		}
	} else {
		subscribeMsg = map[string]interface{}{
			"assets_ids": newAssets,
			"operation":  "subscribe",
		}
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	// Network I/O without holding the lock.
	err := m.conn.WriteJSON(subscribeMsg)
	if err != nil {
		m.mu.Lock()
		for _, id := range newAssets {
			delete(m.subscribed, id)
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write subscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))

	m.logger.Info("subscribed-to-assets",
		zap.Int("new-count", len(newAssets)),
		zap.Int("total-count", totalSubscribed))

	return nil
}

// Unsubscribe removes subscriptions for the given asset ids.
func (m *Manager) Unsubscribe(ctx context.Context, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}

	m.mu.Lock()

	toRemove := make([]string, 0, len(assetIDs))
	for _, id := range assetIDs {
		if m.subscribed[id] {
			toRemove = append(toRemove, id)
			delete(m.subscribed, id)
		}
	}

	if len(toRemove) == 0 {
		m.mu.Unlock()
		m.logger.Debug("no-assets-to-unsubscribe")
		return nil
	}

	unsubscribeMsg := map[string]interface{}{
		"assets_ids": toRemove,
		"operation":  "unsubscribe",
	}

	totalSubscribed := len(m.subscribed)
	m.mu.Unlock()

	err := m.conn.WriteJSON(unsubscribeMsg)
	if err != nil {
		m.mu.Lock()
		for _, id := range toRemove {
			m.subscribed[id] = true
		}
		totalSubscribed = len(m.subscribed)
		m.mu.Unlock()

		SubscriptionCount.Set(float64(totalSubscribed))
		return fmt.Errorf("write unsubscribe message: %w", err)
	}

	SubscriptionCount.Set(float64(totalSubscribed))
	UnsubscriptionsTotal.Inc()

	m.logger.Info("unsubscribed-from-assets",
		zap.Int("count", len(toRemove)),
		zap.Int("remaining-count", totalSubscribed))

	return nil
}

// readLoop reads frames from the connection and fans the contained events out
// to the message channel.
func (m *Manager) readLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.mu.RLock()
		conn := m.conn
		m.mu.RUnlock()

		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.logger.Warn("read-error", zap.Error(err))

			startTime := m.connectedAt.Load()
			if startTime > 0 {
				ConnectionDuration.Observe(time.Since(time.Unix(startTime, 0)).Seconds())
			}

			m.connected.Store(false)
			ActiveConnections.Set(0)
			return
		}

		m.dispatch(message)
	}
}

// dispatch parses one frame (the exchange sends arrays of events) and pushes
// each event to the channel without blocking the reader.
func (m *Manager) dispatch(message []byte) {
	var events []types.MarketMessage
	err := json.Unmarshal(message, &events)
	if err != nil {
		messageStr := string(message)

		// Heartbeats arrive as empty arrays or tiny payloads.
		if messageStr == "[]" || messageStr == "" || len(message) < 10 {
			m.logger.Debug("websocket-heartbeat-received", zap.Int("bytes", len(message)))
			return
		}

		// Subscription confirmations and other control frames are objects.
		var controlMsg map[string]interface{}
		if json.Unmarshal(message, &controlMsg) == nil {
			if msgType, ok := controlMsg["type"].(string); ok {
				m.logger.Debug("websocket-control-message",
					zap.String("type", msgType),
					zap.Int("bytes", len(message)))
				return
			}
		}

		previewLen := len(messageStr)
		if previewLen > 100 {
			previewLen = 100
		}
		m.logger.Debug("websocket-unparseable-message",
			zap.Error(err),
			zap.Int("bytes", len(message)),
			zap.String("preview", messageStr[:previewLen]))
		return
	}

	for i := range events {
		start := time.Now()
		ev := &events[i]

		MessagesReceivedTotal.WithLabelValues(ev.EventType).Inc()

		select {
		case m.messageChan <- ev:
		default:
			m.logger.Warn("message-channel-full", zap.String("event-type", ev.EventType))
			MessagesDroppedTotal.WithLabelValues("channel_full").Inc()
		}

		MessageLatencySeconds.Observe(time.Since(start).Seconds())
	}
}

// pingLoop sends periodic PING control frames.
func (m *Manager) pingLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if !m.connected.Load() {
				continue
			}

			m.mu.RLock()
			conn := m.conn
			m.mu.RUnlock()

			if conn == nil {
				continue
			}

			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
			if err != nil {
				m.logger.Warn("ping-error", zap.Error(err))
			}
		}
	}
}

// reconnectLoop re-establishes the connection when it drops and resubscribes
// every tracked asset.
func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		if m.connected.Load() {
			time.Sleep(time.Second)
			continue
		}

		m.logger.Warn("connection-lost-initiating-reconnect")

		err := m.reconnectMgr.Reconnect(m.ctx, m.connect)
		if err != nil {
			if err == context.Canceled {
				return
			}
			m.logger.Error("reconnection-failed", zap.Error(err))
			continue
		}

		err = m.resubscribeAll()
		if err != nil {
			m.logger.Error("resubscribe-failed", zap.Error(err))
			m.connected.Store(false)
			continue
		}

		m.logger.Info("reconnection-complete-restarting-read-loop")

		m.wg.Add(1)
		go m.readLoop()
	}
}

// resubscribeAll re-sends the full subscription set after a reconnect.
func (m *Manager) resubscribeAll() error {
	m.mu.RLock()
	assetIDs := make([]string, 0, len(m.subscribed))
	for id := range m.subscribed {
		assetIDs = append(assetIDs, id)
	}
	m.mu.RUnlock()

	if len(assetIDs) == 0 {
		return nil
	}

	subscribeMsg := map[string]interface{}{
		"assets_ids": assetIDs,
		"type":       "market",
	}

	m.mu.RLock()
	err := m.conn.WriteJSON(subscribeMsg)
	m.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("write resubscribe message: %w", err)
	}

	m.logger.Info("resubscribed-to-all-assets", zap.Int("count", len(assetIDs)))

	return nil
}

// Messages returns the channel of demultiplexed market events.
func (m *Manager) Messages() <-chan *types.MarketMessage {
	return m.messageChan
}

// Connected reports whether the connection is currently up.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// SubscribedCount returns the number of assets with an active subscription.
func (m *Manager) SubscribedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribed)
}

// Close gracefully closes the WebSocket manager.
func (m *Manager) Close() error {
	m.logger.Info("closing-websocket-manager")

	m.cancel()

	m.mu.RLock()
	if m.conn != nil {
		m.conn.Close()
	}
	m.mu.RUnlock()

	m.wg.Wait()

	close(m.messageChan)

	ActiveConnections.Set(0)

	m.logger.Info("websocket-manager-closed")

	return nil
}
