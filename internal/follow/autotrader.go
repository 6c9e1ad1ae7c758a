package follow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const paperHistoryFile = "follow-paper-history.json"

// Auto-trader modes and execution styles.
const (
	ModeQueue = "queue"
	ModeAuto  = "auto"

	StyleCopy  = "copy"
	StyleSweep = "sweep"
)

// Sweep stop reasons recorded on every execution.
const (
	StopCapReached        = "capReached"
	StopSizeExhausted     = "sizeExhausted"
	StopPriceCapHit       = "priceCapHit"
	StopInsufficientDepth = "insufficientDepth"
	StopQuotaHit          = "quotaHit"
)

// trader is the order-placing slice of the CLOB client.
type trader interface {
	CreateOrder(ctx context.Context, args clob.OrderArgs) (*types.OrderSubmissionResponse, error)
}

// bookReader serves cached book snapshots for paper fills and sweep walks.
type bookReader interface {
	GetFreshBook(assetID string, ttl time.Duration) (*types.BookSnapshot, bool)
}

// ExecutedOrder is one placed (or paper-filled) order within an execution.
type ExecutedOrder struct {
	OrderID string  `json:"orderId,omitempty"`
	Price   float64 `json:"price"`
	Shares  float64 `json:"shares"`
	USDC    float64 `json:"usdc"`
	Paper   bool    `json:"paper"`
}

// Execution is the outcome of acting on one suggestion.
type Execution struct {
	SuggestionID string          `json:"suggestionId"`
	Style        string          `json:"style"`
	Paper        bool            `json:"paper"`
	Orders       []ExecutedOrder `json:"orders"`
	TotalUSDC    float64         `json:"totalUsdc"`
	StopReason   string          `json:"sweepStopReason,omitempty"`
	Status       string          `json:"status"` // executed, failed, skipped
	Error        string          `json:"error,omitempty"`
	ExecutedAt   time.Time       `json:"executedAt"`
}

// AutoTraderConfig tunes suggestion consumption and execution.
type AutoTraderConfig struct {
	Mode  string // queue or auto
	Style string // copy or sweep
	Paper bool   // fill against cached books instead of placing orders

	PriceBufferCents float64 // copy style, slippage allowance off the event price

	SweepPriceCapCents  float64 // worst acceptable level price, in cents
	SweepMaxOrders      int     // orders per event
	SweepMaxUsdcPerEvnt float64
	SweepMinInterval    time.Duration

	MaxOrdersPerHour  int
	AllowConditionIDs []string // empty allows all
	DenyConditionIDs  []string

	BookTTL     time.Duration // max snapshot age for paper fills and sweeps
	HistorySize int
}

// ApplyDefaults fills unset fields.
func (c *AutoTraderConfig) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeQueue
	}
	if c.Style == "" {
		c.Style = StyleCopy
	}
	if c.PriceBufferCents <= 0 {
		c.PriceBufferCents = 2
	}
	if c.SweepPriceCapCents <= 0 {
		c.SweepPriceCapCents = 99
	}
	if c.SweepMaxOrders <= 0 {
		c.SweepMaxOrders = 3
	}
	if c.SweepMaxUsdcPerEvnt <= 0 {
		c.SweepMaxUsdcPerEvnt = 100
	}
	if c.SweepMinInterval <= 0 {
		c.SweepMinInterval = 200 * time.Millisecond
	}
	if c.MaxOrdersPerHour <= 0 {
		c.MaxOrdersPerHour = 20
	}
	if c.BookTTL <= 0 {
		c.BookTTL = 30 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 1000
	}
}

// AutoTraderStatus is the public state snapshot.
type AutoTraderStatus struct {
	Mode            string `json:"mode"`
	Style           string `json:"style"`
	Paper           bool   `json:"paper"`
	Running         bool   `json:"running"`
	Pending         int    `json:"pending"`
	Executions      int    `json:"executions"`
	PaperExecutions int    `json:"paperExecutions"`
	OrdersLastHour  int    `json:"ordersLastHour"`
}

// PaperSummary aggregates the paper-trading history.
type PaperSummary struct {
	Executions   int            `json:"executions"`
	Orders       int            `json:"orders"`
	TotalUSDC    float64        `json:"totalUsdc"`
	TotalShares  float64        `json:"totalShares"`
	AvgPrice     float64        `json:"avgPrice"`
	ByStopReason map[string]int `json:"byStopReason"`
}

// AutoTrader consumes suggestions in queue or auto mode and executes them
// with copy or sweep style, live or paper.
type AutoTrader struct {
	trader trader
	books  bookReader
	store  *storage.FileStore
	logger *zap.Logger

	cfgMu sync.RWMutex
	cfg   AutoTraderConfig

	mu           sync.Mutex
	running      bool
	pending      map[string]*Suggestion
	pendingOrder []string // suggestion IDs, arrival order
	history      []*Execution
	paperHistory []*Execution
	orderTimes   []time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAutoTrader creates the trader. trader may be nil for paper-only use;
// store may be nil for memory-only paper history.
func NewAutoTrader(cfg AutoTraderConfig, t trader, books bookReader, store *storage.FileStore, logger *zap.Logger) *AutoTrader {
	cfg.ApplyDefaults()
	a := &AutoTrader{
		trader:  t,
		books:   books,
		store:   store,
		logger:  logger,
		cfg:     cfg,
		pending: make(map[string]*Suggestion),
	}
	a.loadPaperHistory()
	return a
}

func (a *AutoTrader) loadPaperHistory() {
	if a.store == nil {
		return
	}
	var persisted []*Execution
	found, err := a.store.Load(paperHistoryFile, &persisted)
	if err != nil {
		a.logger.Warn("paper-history-load-failed", zap.Error(err))
		return
	}
	if found {
		a.paperHistory = persisted
		a.logger.Info("paper-history-loaded", zap.Int("executions", len(persisted)))
	}
}

func (a *AutoTrader) persistPaperHistory() {
	if a.store == nil {
		return
	}
	a.mu.Lock()
	snapshot := append([]*Execution(nil), a.paperHistory...)
	a.mu.Unlock()
	if err := a.store.Save(paperHistoryFile, snapshot); err != nil {
		a.logger.Error("paper-history-persist-failed", zap.Error(err))
	}
}

// Start consumes the suggestion stream until ctx is canceled.
func (a *AutoTrader) Start(ctx context.Context, suggestions <-chan *Suggestion) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.config()
	a.logger.Info("auto-trader-starting",
		zap.String("mode", cfg.Mode),
		zap.String("style", cfg.Style),
		zap.Bool("paper", cfg.Paper))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				a.logger.Info("auto-trader-stopping")
				return
			case s, ok := <-suggestions:
				if !ok {
					return
				}
				a.handle(runCtx, s)
			}
		}
	}()
}

// Stop halts consumption. Pending suggestions survive.
func (a *AutoTrader) Stop() {
	a.mu.Lock()
	running := a.running
	a.running = false
	a.mu.Unlock()
	if !running {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// handle routes one suggestion per mode and the condition filters.
func (a *AutoTrader) handle(ctx context.Context, s *Suggestion) {
	cfg := a.config()
	if !a.conditionAllowed(cfg, s.Event.ConditionID) {
		a.record(&Execution{
			SuggestionID: s.ID,
			Style:        cfg.Style,
			Paper:        cfg.Paper,
			Status:       "skipped",
			Error:        "condition filtered",
			ExecutedAt:   time.Now(),
		})
		ExecutionsTotal.WithLabelValues(cfg.Mode, "skipped").Inc()
		return
	}

	if cfg.Mode == ModeAuto {
		a.execute(ctx, s)
		return
	}
	a.mu.Lock()
	if _, dup := a.pending[s.ID]; !dup {
		a.pending[s.ID] = s
		a.pendingOrder = append(a.pendingOrder, s.ID)
		PendingDepth.Set(float64(len(a.pending)))
	}
	a.mu.Unlock()
}

func (a *AutoTrader) conditionAllowed(cfg AutoTraderConfig, conditionID string) bool {
	for _, id := range cfg.DenyConditionIDs {
		if id == conditionID {
			return false
		}
	}
	if len(cfg.AllowConditionIDs) == 0 {
		return true
	}
	for _, id := range cfg.AllowConditionIDs {
		if id == conditionID {
			return true
		}
	}
	return false
}

// ExecutePending runs one queued suggestion by ID (queue mode approval).
func (a *AutoTrader) ExecutePending(ctx context.Context, id string) (*Execution, error) {
	a.mu.Lock()
	s, ok := a.pending[id]
	if ok {
		delete(a.pending, id)
		for i, pid := range a.pendingOrder {
			if pid == id {
				a.pendingOrder = append(a.pendingOrder[:i], a.pendingOrder[i+1:]...)
				break
			}
		}
		PendingDepth.Set(float64(len(a.pending)))
	}
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no pending suggestion %s", id)
	}
	return a.execute(ctx, s), nil
}

// execute runs the configured style under the hourly order cap.
func (a *AutoTrader) execute(ctx context.Context, s *Suggestion) *Execution {
	cfg := a.config()
	exec := &Execution{
		SuggestionID: s.ID,
		Style:        cfg.Style,
		Paper:        cfg.Paper,
		ExecutedAt:   time.Now(),
	}

	if a.hourlyOrdersUsed() >= cfg.MaxOrdersPerHour {
		exec.Status = "skipped"
		exec.StopReason = StopQuotaHit
		s.Status = SuggestionFailed
		a.finish(cfg, exec)
		return exec
	}

	switch cfg.Style {
	case StyleSweep:
		a.executeSweep(ctx, cfg, s, exec)
	default:
		a.executeCopy(ctx, cfg, s, exec)
	}

	if exec.Status == "executed" {
		s.Status = SuggestionExecuted
	} else {
		s.Status = SuggestionFailed
	}
	a.finish(cfg, exec)
	return exec
}

func (a *AutoTrader) finish(cfg AutoTraderConfig, exec *Execution) {
	a.record(exec)
	ExecutionsTotal.WithLabelValues(cfg.Mode, exec.Status).Inc()
	if exec.Paper && exec.Status != "skipped" {
		a.persistPaperHistory()
	}
	a.logger.Info("follow-execution-finished",
		zap.String("suggestion-id", exec.SuggestionID),
		zap.String("style", exec.Style),
		zap.String("status", exec.Status),
		zap.Int("orders", len(exec.Orders)),
		zap.Float64("total-usdc", exec.TotalUSDC),
		zap.String("stop-reason", exec.StopReason))
}

// executeCopy places a single order at the event price padded by the buffer.
func (a *AutoTrader) executeCopy(ctx context.Context, cfg AutoTraderConfig, s *Suggestion, exec *Execution) {
	buffer := cfg.PriceBufferCents / 100
	price := s.Event.Price + buffer
	if s.Event.Side == types.SideSell {
		price = s.Event.Price - buffer
	}
	price = clampPrice(price)
	shares := s.SuggestedUSDC / price

	if cfg.Paper {
		book, ok := a.books.GetFreshBook(s.Event.Asset, cfg.BookTTL)
		if !ok {
			exec.Status = "failed"
			exec.StopReason = StopInsufficientDepth
			exec.Error = "no fresh book for paper fill"
			return
		}
		// Touch rule: fill at the current best when it is inside the limit.
		level := book.BestAsk()
		crossed := func(l *types.BookLevel) bool { return l.Price <= price }
		if s.Event.Side == types.SideSell {
			level = book.BestBid()
			crossed = func(l *types.BookLevel) bool { return l.Price >= price }
		}
		if level == nil || !crossed(level) {
			exec.Status = "failed"
			exec.StopReason = StopInsufficientDepth
			exec.Error = "best level outside limit price"
			return
		}
		filled := min(shares, level.Size)
		exec.Orders = append(exec.Orders, ExecutedOrder{
			Price:  level.Price,
			Shares: filled,
			USDC:   filled * level.Price,
			Paper:  true,
		})
		exec.TotalUSDC = filled * level.Price
		exec.Status = "executed"
		exec.StopReason = StopSizeExhausted
		a.noteOrder()
		PaperFillsTotal.Inc()
		return
	}

	resp, err := a.trader.CreateOrder(ctx, clob.OrderArgs{
		TokenID:   s.Event.Asset,
		Side:      s.Event.Side,
		Price:     price,
		Size:      shares,
		OrderType: types.OrderTypeGTC,
	})
	if err != nil {
		exec.Status = "failed"
		exec.Error = err.Error()
		return
	}
	if !resp.Succeeded() {
		exec.Status = "failed"
		exec.Error = resp.ErrorMsg
		return
	}
	exec.Orders = append(exec.Orders, ExecutedOrder{
		OrderID: resp.OrderID,
		Price:   price,
		Shares:  shares,
		USDC:    s.SuggestedUSDC,
	})
	exec.TotalUSDC = s.SuggestedUSDC
	exec.Status = "executed"
	exec.StopReason = StopSizeExhausted
	a.noteOrder()
	OrdersPlacedTotal.Inc()
}

// executeSweep walks book levels toward the price cap, placing one order per
// level. The price cap is checked before the remaining budget so a sweep that
// spends its budget exactly at a level boundary still reports why the walk
// could not continue.
func (a *AutoTrader) executeSweep(ctx context.Context, cfg AutoTraderConfig, s *Suggestion, exec *Execution) {
	book, ok := a.books.GetFreshBook(s.Event.Asset, cfg.BookTTL)
	if !ok {
		exec.Status = "failed"
		exec.StopReason = StopInsufficientDepth
		exec.Error = "no fresh book for sweep"
		return
	}

	buying := s.Event.Side != types.SideSell
	levels := book.Asks
	if !buying {
		levels = book.Bids
	}
	priceCap := cfg.SweepPriceCapCents / 100
	budget := min(s.SuggestedUSDC, cfg.SweepMaxUsdcPerEvnt)
	sized := s.SuggestedUSDC <= cfg.SweepMaxUsdcPerEvnt
	remaining := budget

	for i := range levels {
		level := &levels[i]
		if (buying && level.Price > priceCap) || (!buying && level.Price < priceCap) {
			exec.StopReason = StopPriceCapHit
			break
		}
		if len(exec.Orders) >= cfg.SweepMaxOrders {
			exec.StopReason = StopCapReached
			break
		}
		if a.hourlyOrdersUsed() >= cfg.MaxOrdersPerHour {
			exec.StopReason = StopQuotaHit
			break
		}
		if remaining < 0.01 {
			if sized {
				exec.StopReason = StopSizeExhausted
			} else {
				exec.StopReason = StopCapReached
			}
			break
		}

		shares := min(level.Size, remaining/level.Price)
		if len(exec.Orders) > 0 {
			select {
			case <-ctx.Done():
				exec.Status = "failed"
				exec.Error = ctx.Err().Error()
				return
			case <-time.After(cfg.SweepMinInterval):
			}
		}

		order := ExecutedOrder{
			Price:  level.Price,
			Shares: shares,
			USDC:   shares * level.Price,
			Paper:  cfg.Paper,
		}
		if cfg.Paper {
			PaperFillsTotal.Inc()
		} else {
			resp, err := a.trader.CreateOrder(ctx, clob.OrderArgs{
				TokenID:   s.Event.Asset,
				Side:      s.Event.Side,
				Price:     level.Price,
				Size:      shares,
				OrderType: types.OrderTypeGTC,
			})
			if err != nil {
				exec.Status = "failed"
				exec.Error = err.Error()
				return
			}
			if !resp.Succeeded() {
				exec.Status = "failed"
				exec.Error = resp.ErrorMsg
				return
			}
			order.OrderID = resp.OrderID
			OrdersPlacedTotal.Inc()
		}
		exec.Orders = append(exec.Orders, order)
		exec.TotalUSDC += order.USDC
		remaining -= order.USDC
		a.noteOrder()
	}

	if exec.StopReason == "" {
		// Walked off the end of the book.
		if remaining >= 0.01 {
			exec.StopReason = StopInsufficientDepth
		} else if sized {
			exec.StopReason = StopSizeExhausted
		} else {
			exec.StopReason = StopCapReached
		}
	}

	if len(exec.Orders) == 0 {
		exec.Status = "failed"
		return
	}
	exec.Status = "executed"
}

func clampPrice(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}

// record appends to the bounded history (and paper history when relevant).
func (a *AutoTrader) record(exec *Execution) {
	cfg := a.config()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, exec)
	if len(a.history) > cfg.HistorySize {
		a.history = a.history[len(a.history)-cfg.HistorySize:]
	}
	if exec.Paper && exec.Status != "skipped" {
		a.paperHistory = append(a.paperHistory, exec)
		if len(a.paperHistory) > cfg.HistorySize {
			a.paperHistory = a.paperHistory[len(a.paperHistory)-cfg.HistorySize:]
		}
	}
}

// noteOrder stamps one placed order into the hourly window.
func (a *AutoTrader) noteOrder() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orderTimes = append(a.orderTimes, time.Now())
}

func (a *AutoTrader) hourlyOrdersUsed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := time.Now().Add(-time.Hour)
	kept := a.orderTimes[:0]
	for _, t := range a.orderTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.orderTimes = kept
	return len(kept)
}

// Pending lists queued suggestions in arrival order.
func (a *AutoTrader) Pending() []*Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Suggestion, 0, len(a.pendingOrder))
	for _, id := range a.pendingOrder {
		if s, ok := a.pending[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// History returns all executions, oldest first.
func (a *AutoTrader) History() []*Execution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Execution(nil), a.history...)
}

// PaperHistory returns paper executions, oldest first.
func (a *AutoTrader) PaperHistory() []*Execution {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Execution(nil), a.paperHistory...)
}

// Summary aggregates the paper history.
func (a *AutoTrader) Summary() PaperSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	sum := PaperSummary{ByStopReason: make(map[string]int)}
	for _, exec := range a.paperHistory {
		sum.Executions++
		sum.Orders += len(exec.Orders)
		sum.TotalUSDC += exec.TotalUSDC
		for _, o := range exec.Orders {
			sum.TotalShares += o.Shares
		}
		if exec.StopReason != "" {
			sum.ByStopReason[exec.StopReason]++
		}
	}
	if sum.TotalShares > 0 {
		sum.AvgPrice = sum.TotalUSDC / sum.TotalShares
	}
	return sum
}

// Status returns the public snapshot.
func (a *AutoTrader) Status() AutoTraderStatus {
	cfg := a.config()
	used := a.hourlyOrdersUsed()
	a.mu.Lock()
	defer a.mu.Unlock()
	paper := 0
	for _, exec := range a.history {
		if exec.Paper {
			paper++
		}
	}
	return AutoTraderStatus{
		Mode:            cfg.Mode,
		Style:           cfg.Style,
		Paper:           cfg.Paper,
		Running:         a.running,
		Pending:         len(a.pending),
		Executions:      len(a.history),
		PaperExecutions: paper,
		OrdersLastHour:  used,
	}
}

// Config returns the current configuration.
func (a *AutoTrader) Config() AutoTraderConfig { return a.config() }

// SetConfig replaces the configuration for subsequent executions.
func (a *AutoTrader) SetConfig(cfg AutoTraderConfig) {
	cfg.ApplyDefaults()
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
	a.logger.Info("auto-trader-config-updated",
		zap.String("mode", cfg.Mode),
		zap.String("style", cfg.Style),
		zap.Bool("paper", cfg.Paper))
}

func (a *AutoTrader) config() AutoTraderConfig {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}
