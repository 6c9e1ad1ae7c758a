package arbitrage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/books"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// PositionsFunc reports the dollar value of mergeable outcome pairs held
// for one market, priced at $1 per pair.
type PositionsFunc func(ctx context.Context, conditionID string) (float64, error)

// subscriber is the slice of the WebSocket manager the engine needs.
type subscriber interface {
	Subscribe(ctx context.Context, assetIDs []string) error
	Unsubscribe(ctx context.Context, assetIDs []string) error
}

// bookSource pairs snapshot reads with the shared update stream.
type bookSource interface {
	bookReader
	RegisterPair(pair types.MarketPair)
	UnregisterPair(pair types.MarketPair)
	Updates() <-chan *books.Update
}

// EngineConfig holds realtime-engine tuning.
type EngineConfig struct {
	Epsilon        float64
	AutoExecute    bool
	PauseThreshold int // rebalance priority that pauses strategy quoting
	Logger         *zap.Logger
}

func (c *EngineConfig) applyDefaults() {
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = 80
	}
}

// Engine is the realtime arbitrage driver: it subscribes monitored markets
// to the feed, recomputes effective prices on every book update, and hands
// qualifying opportunities to the executor under the per-market state gate.
type Engine struct {
	ws         subscriber
	books      bookSource
	cache      *OpportunityCache
	executor   *Executor
	rebalancer *Rebalancer
	positions  PositionsFunc
	cfg        EngineConfig
	logger     *zap.Logger

	mu       sync.RWMutex
	monitors map[string]*marketMonitor // keyed by conditionID

	oppChan chan *Opportunity
	wg      sync.WaitGroup
}

// marketMonitor is one monitored market's subscription and state.
type marketMonitor struct {
	pair    types.MarketPair
	machine *Machine
	// quotesPaused is set while a high-priority rebalance is pending.
	quotesPaused bool
}

// NewEngine creates the realtime engine. positions may be nil; rebalance
// decisions then see only the USDC side.
func NewEngine(cfg EngineConfig, ws subscriber, source bookSource, cache *OpportunityCache, executor *Executor, rebalancer *Rebalancer, positions PositionsFunc) *Engine {
	cfg.applyDefaults()
	return &Engine{
		ws:         ws,
		books:      source,
		cache:      cache,
		executor:   executor,
		rebalancer: rebalancer,
		positions:  positions,
		cfg:        cfg,
		logger:     cfg.Logger,
		monitors:   make(map[string]*marketMonitor),
		oppChan:    make(chan *Opportunity, 50),
	}
}

// Start launches the update-evaluation loop.
func (e *Engine) Start(ctx context.Context) {
	e.logger.Info("arbitrage-engine-starting",
		zap.Bool("auto-execute", e.cfg.AutoExecute),
		zap.Float64("epsilon", e.cfg.Epsilon))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("arbitrage-engine-stopping")
				return
			case upd, ok := <-e.books.Updates():
				if !ok {
					return
				}
				e.handleUpdate(ctx, upd)
			}
		}
	}()
}

// Close waits for the evaluation loop to exit.
func (e *Engine) Close() {
	e.wg.Wait()
	close(e.oppChan)
}

// Opportunities streams realtime detections. Consumers must keep up; the
// channel drops when full.
func (e *Engine) Opportunities() <-chan *Opportunity {
	return e.oppChan
}

// StartMarket begins monitoring one market: subscribe both outcome assets
// and register the pair for sibling-aware updates.
func (e *Engine) StartMarket(ctx context.Context, pair types.MarketPair) error {
	e.mu.Lock()
	if _, exists := e.monitors[pair.ConditionID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("market %s already monitored", pair.ConditionID)
	}
	monitor := &marketMonitor{pair: pair, machine: NewMachine()}
	e.monitors[pair.ConditionID] = monitor
	e.mu.Unlock()

	if err := monitor.machine.To(StateSubscribing); err != nil {
		return err
	}
	e.books.RegisterPair(pair)
	if err := e.ws.Subscribe(ctx, []string{pair.YesAssetID, pair.NoAssetID}); err != nil {
		e.books.UnregisterPair(pair)
		e.removeMonitor(pair.ConditionID)
		return fmt.Errorf("subscribe %s: %w", pair.Slug, err)
	}
	if err := monitor.machine.To(StateMonitoring); err != nil {
		return err
	}

	MonitoredMarkets.Inc()
	e.logger.Info("market-monitoring-started",
		zap.String("condition-id", pair.ConditionID),
		zap.String("slug", pair.Slug))
	return nil
}

// StopMarket unwinds one market's subscription.
func (e *Engine) StopMarket(ctx context.Context, conditionID string) error {
	e.mu.RLock()
	monitor, ok := e.monitors[conditionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("market %s not monitored", conditionID)
	}

	if err := monitor.machine.To(StateStopping); err != nil {
		return err
	}
	if err := e.ws.Unsubscribe(ctx, []string{monitor.pair.YesAssetID, monitor.pair.NoAssetID}); err != nil {
		e.logger.Warn("unsubscribe-failed",
			zap.String("condition-id", conditionID),
			zap.Error(err))
	}
	e.books.UnregisterPair(monitor.pair)
	if err := monitor.machine.To(StateIdle); err != nil {
		return err
	}
	e.removeMonitor(conditionID)

	MonitoredMarkets.Dec()
	e.logger.Info("market-monitoring-stopped", zap.String("condition-id", conditionID))
	return nil
}

// MarketState reports a monitored market's lifecycle phase.
func (e *Engine) MarketState(conditionID string) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	monitor, ok := e.monitors[conditionID]
	if !ok {
		return StateIdle, false
	}
	return monitor.machine.Current(), true
}

// QuotesPaused reports whether strategy quoting on a market should pause
// for a pending high-priority rebalance.
func (e *Engine) QuotesPaused(conditionID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	monitor, ok := e.monitors[conditionID]
	return ok && monitor.quotesPaused
}

func (e *Engine) removeMonitor(conditionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.monitors, conditionID)
}

// handleUpdate recomputes the predicate whenever a monitored market's book
// moves.
func (e *Engine) handleUpdate(ctx context.Context, upd *books.Update) {
	if upd == nil || upd.Snapshot == nil || upd.PairAssetID == "" {
		return
	}

	e.mu.RLock()
	monitor, ok := e.monitors[upd.Snapshot.ConditionID]
	e.mu.RUnlock()
	if !ok {
		return
	}

	yes, okYes := e.books.GetFreshBook(monitor.pair.YesAssetID, time.Minute)
	no, okNo := e.books.GetFreshBook(monitor.pair.NoAssetID, time.Minute)
	if !okYes || !okNo {
		return
	}

	sig, found := evaluateBooks(yes, no, e.cfg.Epsilon)
	if !found {
		return
	}

	opp := NewOpportunity(monitor.pair, sig, yes, no)
	sizeOpportunity(opp, e.executor.fetchBalance(ctx), e.executor.cfg.MaxTradeUSD, e.executor.cfg.SizeSafety)
	e.cache.Refresh(opp)
	OpportunitiesDetectedTotal.WithLabelValues(string(opp.Type), "realtime").Inc()

	select {
	case e.oppChan <- opp:
	default:
		e.logger.Warn("opportunity-channel-full", zap.String("market-slug", opp.Pair.Slug))
	}

	if e.cfg.AutoExecute {
		e.executeGated(ctx, monitor, opp)
	}
}

// executeGated runs the executor under the per-market mutual-exclusion
// gate, then reacts to an imbalanced result with a rebalance attempt.
func (e *Engine) executeGated(ctx context.Context, monitor *marketMonitor, opp *Opportunity) {
	if !monitor.machine.TryTo(StateExecuting) {
		// Executing or rebalancing already; this opportunity stays cached.
		return
	}

	result, err := e.executor.Execute(ctx, opp)

	// Rebalancing is only reachable from monitoring, so return there before
	// reacting to an imbalanced result.
	if !monitor.machine.TryTo(StateMonitoring) {
		e.logger.Warn("monitor-state-stuck",
			zap.String("condition-id", monitor.pair.ConditionID),
			zap.String("state", string(monitor.machine.Current())))
		return
	}
	if err != nil {
		if types.IsKind(err, types.KindStaleBook) {
			e.logger.Info("execution-deferred-stale-book", zap.String("market-slug", opp.Pair.Slug))
		}
		return
	}
	if result.Success {
		e.cache.Remove(opp.Key())
		return
	}
	if result.FailureKind == types.KindImbalanced {
		e.rebalanceGated(ctx, monitor)
	}
}

// rebalanceGated moves the market through the rebalancing state. Balance
// inputs come from the executor's balance source; the paired-token value is
// approximated by the merged/split amounts outstanding, which the
// settlement client reads on demand inside the rebalancer.
func (e *Engine) rebalanceGated(ctx context.Context, monitor *marketMonitor) {
	if !monitor.machine.TryTo(StateRebalancing) {
		return
	}
	defer monitor.machine.TryTo(StateMonitoring)

	usdc := e.executor.fetchBalance(ctx)
	pairs := e.pairedTokenValue(ctx, monitor.pair)

	decision := e.rebalancer.Evaluate(usdc, pairs)
	e.setQuotesPaused(monitor, e.rebalancer.PausesQuotes(decision, e.cfg.PauseThreshold))

	if _, err := e.rebalancer.Maybe(ctx, monitor.pair.ConditionID, monitor.pair.NegRisk, usdc, pairs); err != nil {
		e.logger.Error("rebalance-failed",
			zap.String("condition-id", monitor.pair.ConditionID),
			zap.Error(err))
		return
	}
	e.setQuotesPaused(monitor, false)
}

func (e *Engine) setQuotesPaused(monitor *marketMonitor, paused bool) {
	e.mu.Lock()
	monitor.quotesPaused = paused
	e.mu.Unlock()
}

func (e *Engine) pairedTokenValue(ctx context.Context, pair types.MarketPair) float64 {
	if e.positions == nil {
		return 0
	}
	pairs, err := e.positions(ctx, pair.ConditionID)
	if err != nil {
		e.logger.Warn("position-read-failed",
			zap.String("condition-id", pair.ConditionID),
			zap.Error(err))
		return 0
	}
	return pairs
}
