// Package session drives a trading strategy over one market. A session owns
// a single loop consuming a merged stream of book updates and periodic
// ticks, asks the strategy for signals, and dispatches the resulting actions
// serially to the order and settlement executors.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Signal kinds a strategy can emit.
const (
	SignalRebalance   = "rebalance"
	SignalPlaceOrder  = "place_order"
	SignalCancelOrder = "cancel_order"
)

// Signal is one strategy decision. Order is set for place_order, OrderID for
// cancel_order.
type Signal struct {
	Kind    string
	Order   *clob.OrderArgs
	OrderID string
}

// Strategy turns stream events into signals. Both methods are called from
// the session loop only, so implementations need no locking of their own.
type Strategy interface {
	Name() string
	OnBook(book *types.BookSnapshot) []Signal
	OnTick(now time.Time) []Signal
}

// orderExecutor is the slice of the CLOB client the session dispatches to.
type orderExecutor interface {
	CreateOrder(ctx context.Context, args clob.OrderArgs) (*types.OrderSubmissionResponse, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// rebalancer is the shared wallet-ratio rebalancer; its cooldown and
// escalation rules apply to session-driven rebalances too.
type rebalancer interface {
	Maybe(ctx context.Context, conditionID string, negRisk bool, usdcUSD, pairedTokensUSD float64) (*arbitrage.RebalanceDecision, error)
}

// BalanceFunc reads the wallet's spendable collateral in USD.
type BalanceFunc func(ctx context.Context) (float64, error)

// PositionsFunc values the wallet's paired outcome tokens for a condition.
type PositionsFunc func(ctx context.Context, conditionID string) (float64, error)

// BalanceSnapshot is one periodic balance observation.
type BalanceSnapshot struct {
	At   time.Time `json:"at"`
	USDC float64   `json:"usdc"`
}

// Failure is one failed action kept in the bounded history ring.
type Failure struct {
	At    time.Time `json:"at"`
	Op    string    `json:"op"`
	Error string    `json:"error"`
}

// State is the persisted session snapshot.
type State struct {
	ID               string            `json:"id"`
	Strategy         string            `json:"strategy"`
	ConditionID      string            `json:"conditionId"`
	Running          bool              `json:"running"`
	StartedAt        time.Time         `json:"startedAt,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	SignalsGenerated int               `json:"signalsGenerated"`
	OrdersPlaced     int               `json:"ordersPlaced"`
	OrdersCancelled  int               `json:"ordersCancelled"`
	Rebalances       int               `json:"rebalances"`
	BalanceSnapshots []BalanceSnapshot `json:"balanceSnapshots"`
	Failures         []Failure         `json:"failures"`
}

// Config holds session tuning.
type Config struct {
	ConditionID     string
	NegRisk         bool
	TickInterval    time.Duration // periodic strategy tick, default 1s
	PersistInterval time.Duration // state persistence cadence, default 5s
	QuiesceTimeout  time.Duration // stop deadline, default 2s
	MaxSnapshots    int           // balance snapshot ring, default 120
	HistorySize     int           // failure ring, default 100
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.PersistInterval <= 0 {
		c.PersistInterval = 5 * time.Second
	}
	if c.QuiesceTimeout <= 0 {
		c.QuiesceTimeout = 2 * time.Second
	}
	if c.MaxSnapshots <= 0 {
		c.MaxSnapshots = 120
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
}

// Session runs one strategy over one market.
type Session struct {
	id        string
	strategy  Strategy
	orders    orderExecutor
	rebal     rebalancer
	balance   BalanceFunc
	positions PositionsFunc
	updates   <-chan *types.BookSnapshot
	store     *storage.FileStore
	cfg       Config
	logger    *zap.Logger

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a session. rebal, balance, positions and store may be nil;
// rebalance signals are then ignored and state stays in memory.
func New(cfg Config, strategy Strategy, orders orderExecutor, rebal rebalancer,
	balance BalanceFunc, positions PositionsFunc,
	updates <-chan *types.BookSnapshot, store *storage.FileStore, logger *zap.Logger) *Session {
	cfg.ApplyDefaults()
	id := uuid.New().String()
	return &Session{
		id:        id,
		strategy:  strategy,
		orders:    orders,
		rebal:     rebal,
		balance:   balance,
		positions: positions,
		updates:   updates,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		state: State{
			ID:          id,
			Strategy:    strategy.Name(),
			ConditionID: cfg.ConditionID,
		},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start launches the session loop. Idempotent while running.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state.Running {
		s.mu.Unlock()
		return
	}
	s.state.Running = true
	s.state.StartedAt = time.Now()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("session-starting",
		zap.String("session-id", s.id),
		zap.String("strategy", s.strategy.Name()),
		zap.String("condition-id", s.cfg.ConditionID))
	ActiveSessions.Inc()

	go s.run(runCtx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer ActiveSessions.Dec()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	persist := time.NewTicker(s.cfg.PersistInterval)
	defer persist.Stop()

	for {
		select {
		case <-ctx.Done():
			s.persist()
			s.logger.Info("session-stopped", zap.String("session-id", s.id))
			return
		case book, ok := <-s.updates:
			if !ok {
				s.persist()
				return
			}
			s.dispatchAll(ctx, s.strategy.OnBook(book))
		case now := <-ticker.C:
			s.dispatchAll(ctx, s.strategy.OnTick(now))
		case <-persist.C:
			s.snapshotBalance(ctx)
			s.persist()
		}
	}
}

// Stop cancels the loop and waits for it to quiesce, up to the configured
// deadline.
func (s *Session) Stop() {
	s.mu.Lock()
	running := s.state.Running
	s.state.Running = false
	s.mu.Unlock()
	if !running {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-time.After(s.cfg.QuiesceTimeout):
		s.logger.Warn("session-quiesce-timeout",
			zap.String("session-id", s.id),
			zap.Duration("timeout", s.cfg.QuiesceTimeout))
	}
}

// dispatchAll runs signals strictly in order; a failed action is recorded
// and does not stop the rest.
func (s *Session) dispatchAll(ctx context.Context, signals []Signal) {
	for i := range signals {
		s.dispatch(ctx, &signals[i])
	}
}

func (s *Session) dispatch(ctx context.Context, sig *Signal) {
	s.mu.Lock()
	s.state.SignalsGenerated++
	s.mu.Unlock()
	SignalsTotal.WithLabelValues(sig.Kind).Inc()

	switch sig.Kind {
	case SignalPlaceOrder:
		s.placeOrder(ctx, sig)
	case SignalCancelOrder:
		s.cancelOrder(ctx, sig)
	case SignalRebalance:
		s.rebalance(ctx)
	default:
		s.recordFailure(sig.Kind, fmt.Errorf("unknown signal kind %q", sig.Kind))
	}
}

func (s *Session) placeOrder(ctx context.Context, sig *Signal) {
	if sig.Order == nil {
		s.recordFailure(SignalPlaceOrder, fmt.Errorf("place_order signal without order"))
		return
	}
	resp, err := s.orders.CreateOrder(ctx, *sig.Order)
	if err == nil && !resp.Succeeded() {
		err = fmt.Errorf("order rejected: %s", resp.ErrorMsg)
	}
	if err != nil {
		s.recordFailure(SignalPlaceOrder, err)
		ActionsTotal.WithLabelValues(SignalPlaceOrder, "error").Inc()
		return
	}
	s.mu.Lock()
	s.state.OrdersPlaced++
	s.mu.Unlock()
	ActionsTotal.WithLabelValues(SignalPlaceOrder, "success").Inc()
}

func (s *Session) cancelOrder(ctx context.Context, sig *Signal) {
	if sig.OrderID == "" {
		s.recordFailure(SignalCancelOrder, fmt.Errorf("cancel_order signal without order id"))
		return
	}
	if err := s.orders.CancelOrder(ctx, sig.OrderID); err != nil {
		s.recordFailure(SignalCancelOrder, err)
		ActionsTotal.WithLabelValues(SignalCancelOrder, "error").Inc()
		return
	}
	s.mu.Lock()
	s.state.OrdersCancelled++
	s.mu.Unlock()
	ActionsTotal.WithLabelValues(SignalCancelOrder, "success").Inc()
}

// rebalance routes through the shared rebalancer, inheriting its cooldown
// and escalation rules.
func (s *Session) rebalance(ctx context.Context) {
	if s.rebal == nil || s.balance == nil {
		return
	}
	usdc, err := s.balance(ctx)
	if err != nil {
		s.recordFailure(SignalRebalance, err)
		return
	}
	paired := 0.0
	if s.positions != nil {
		if v, err := s.positions(ctx, s.cfg.ConditionID); err == nil {
			paired = v
		}
	}
	decision, err := s.rebal.Maybe(ctx, s.cfg.ConditionID, s.cfg.NegRisk, usdc, paired)
	if err != nil {
		s.recordFailure(SignalRebalance, err)
		ActionsTotal.WithLabelValues(SignalRebalance, "error").Inc()
		return
	}
	if decision == nil {
		ActionsTotal.WithLabelValues(SignalRebalance, "skipped").Inc()
		return
	}
	s.mu.Lock()
	s.state.Rebalances++
	s.mu.Unlock()
	ActionsTotal.WithLabelValues(SignalRebalance, "success").Inc()
}

func (s *Session) recordFailure(op string, err error) {
	s.logger.Warn("session-action-failed",
		zap.String("session-id", s.id),
		zap.String("op", op),
		zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Failures = append(s.state.Failures, Failure{At: time.Now(), Op: op, Error: err.Error()})
	if len(s.state.Failures) > s.cfg.HistorySize {
		s.state.Failures = s.state.Failures[len(s.state.Failures)-s.cfg.HistorySize:]
	}
}

func (s *Session) snapshotBalance(ctx context.Context) {
	if s.balance == nil {
		return
	}
	usdc, err := s.balance(ctx)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.BalanceSnapshots = append(s.state.BalanceSnapshots, BalanceSnapshot{At: time.Now(), USDC: usdc})
	if len(s.state.BalanceSnapshots) > s.cfg.MaxSnapshots {
		s.state.BalanceSnapshots = s.state.BalanceSnapshots[len(s.state.BalanceSnapshots)-s.cfg.MaxSnapshots:]
	}
}

func (s *Session) persist() {
	if s.store == nil {
		return
	}
	state := s.State()
	if err := s.store.Save("session-"+s.id+".json", &state); err != nil {
		s.logger.Error("session-persist-failed",
			zap.String("session-id", s.id),
			zap.Error(err))
		return
	}
	PersistsTotal.Inc()
}

// State returns a copy of the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.UpdatedAt = time.Now()
	out.BalanceSnapshots = append([]BalanceSnapshot(nil), s.state.BalanceSnapshots...)
	out.Failures = append([]Failure(nil), s.state.Failures...)
	return out
}
