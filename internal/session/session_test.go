package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

type fakeStrategy struct {
	onBook []Signal
	onTick []Signal
}

func (f *fakeStrategy) Name() string                          { return "fake" }
func (f *fakeStrategy) OnBook(_ *types.BookSnapshot) []Signal { return f.onBook }
func (f *fakeStrategy) OnTick(_ time.Time) []Signal           { return f.onTick }

type fakeSessionOrders struct {
	mu        sync.Mutex
	created   []clob.OrderArgs
	cancelled []string
	failNext  bool
	notify    chan struct{}
}

func (f *fakeSessionOrders) CreateOrder(_ context.Context, args clob.OrderArgs) (*types.OrderSubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return nil, errors.New("exchange down")
	}
	f.created = append(f.created, args)
	if f.notify != nil {
		select {
		case f.notify <- struct{}{}:
		default:
		}
	}
	return &types.OrderSubmissionResponse{Success: true, OrderID: "order-1"}, nil
}

func (f *fakeSessionOrders) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

type fakeRebal struct {
	mu        sync.Mutex
	calls     int
	decisions []*arbitrage.RebalanceDecision // returned in order, then nil
}

func (f *fakeRebal) Maybe(_ context.Context, _ string, _ bool, _, _ float64) (*arbitrage.RebalanceDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.decisions) == 0 {
		return nil, nil
	}
	d := f.decisions[0]
	f.decisions = f.decisions[1:]
	return d, nil
}

func newTestSession(cfg Config, strategy Strategy, orders orderExecutor, rebal rebalancer,
	updates <-chan *types.BookSnapshot, store *storage.FileStore) *Session {
	if cfg.ConditionID == "" {
		cfg.ConditionID = "0xcond"
	}
	balance := func(context.Context) (float64, error) { return 1234, nil }
	positions := func(context.Context, string) (float64, error) { return 100, nil }
	return New(cfg, strategy, orders, rebal, balance, positions, updates, store, zap.NewNop())
}

func TestDispatchSerialActions(t *testing.T) {
	orders := &fakeSessionOrders{}
	rebal := &fakeRebal{decisions: []*arbitrage.RebalanceDecision{
		{Action: arbitrage.ActionSplit, Amount: 50},
	}}
	s := newTestSession(Config{}, &fakeStrategy{}, orders, rebal, nil, nil)
	ctx := context.Background()

	s.dispatchAll(ctx, []Signal{
		{Kind: SignalPlaceOrder, Order: &clob.OrderArgs{TokenID: "tok", Side: types.SideBuy, Price: 0.5, Size: 10, OrderType: types.OrderTypeGTC}},
		{Kind: SignalCancelOrder, OrderID: "order-9"},
		{Kind: SignalRebalance},
	})

	state := s.State()
	if state.SignalsGenerated != 3 {
		t.Fatalf("signals = %d, want 3", state.SignalsGenerated)
	}
	if state.OrdersPlaced != 1 || state.OrdersCancelled != 1 || state.Rebalances != 1 {
		t.Fatalf("actions = %d placed %d cancelled %d rebalances, want 1/1/1",
			state.OrdersPlaced, state.OrdersCancelled, state.Rebalances)
	}
	if len(orders.created) != 1 || orders.created[0].TokenID != "tok" {
		t.Errorf("created orders = %+v, want one for tok", orders.created)
	}
	if len(orders.cancelled) != 1 || orders.cancelled[0] != "order-9" {
		t.Errorf("cancelled = %v, want [order-9]", orders.cancelled)
	}
}

func TestRebalanceSkippedWithoutDecision(t *testing.T) {
	rebal := &fakeRebal{} // always nil: in band or cooling down
	s := newTestSession(Config{}, &fakeStrategy{}, &fakeSessionOrders{}, rebal, nil, nil)

	s.dispatch(context.Background(), &Signal{Kind: SignalRebalance})
	s.dispatch(context.Background(), &Signal{Kind: SignalRebalance})

	state := s.State()
	if state.Rebalances != 0 {
		t.Fatalf("rebalances = %d, want 0", state.Rebalances)
	}
	if rebal.calls != 2 {
		t.Fatalf("rebalancer consulted %d times, want 2", rebal.calls)
	}
}

func TestFailedActionsLandInBoundedRing(t *testing.T) {
	orders := &fakeSessionOrders{}
	s := newTestSession(Config{HistorySize: 2}, &fakeStrategy{}, orders, nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		orders.failNext = true
		s.dispatch(ctx, &Signal{Kind: SignalPlaceOrder, Order: &clob.OrderArgs{TokenID: "tok"}})
	}

	state := s.State()
	if state.OrdersPlaced != 0 {
		t.Fatalf("orders placed = %d, want 0", state.OrdersPlaced)
	}
	if len(state.Failures) != 2 {
		t.Fatalf("failure ring = %d entries, want 2", len(state.Failures))
	}
	if state.Failures[0].Op != SignalPlaceOrder || state.Failures[0].Error == "" {
		t.Errorf("failure entry = %+v, want op and error recorded", state.Failures[0])
	}
}

func TestMalformedSignalsRecorded(t *testing.T) {
	s := newTestSession(Config{}, &fakeStrategy{}, &fakeSessionOrders{}, nil, nil, nil)
	ctx := context.Background()

	s.dispatch(ctx, &Signal{Kind: SignalPlaceOrder})  // no order
	s.dispatch(ctx, &Signal{Kind: SignalCancelOrder}) // no id
	s.dispatch(ctx, &Signal{Kind: "self_destruct"})   // unknown

	if got := len(s.State().Failures); got != 3 {
		t.Fatalf("failures = %d, want 3", got)
	}
}

func TestBookUpdateDrivesStrategy(t *testing.T) {
	updates := make(chan *types.BookSnapshot, 1)
	orders := &fakeSessionOrders{notify: make(chan struct{}, 1)}
	strategy := &fakeStrategy{onBook: []Signal{
		{Kind: SignalPlaceOrder, Order: &clob.OrderArgs{TokenID: "tok", Side: types.SideBuy, Price: 0.5, Size: 10, OrderType: types.OrderTypeGTC}},
	}}
	s := newTestSession(Config{TickInterval: time.Hour, PersistInterval: time.Hour},
		strategy, orders, nil, updates, nil)

	s.Start(context.Background())
	defer s.Stop()

	updates <- &types.BookSnapshot{AssetID: "tok", FetchedAt: time.Now()}

	select {
	case <-orders.notify:
	case <-time.After(time.Second):
		t.Fatal("book update did not produce an order")
	}
	if state := s.State(); state.OrdersPlaced == 0 {
		t.Error("state did not record the placed order")
	}
}

func TestPersistsStateAndQuiesces(t *testing.T) {
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	s := newTestSession(Config{
		TickInterval:    time.Hour,
		PersistInterval: 10 * time.Millisecond,
	}, &fakeStrategy{}, &fakeSessionOrders{}, nil, nil, store)

	s.Start(context.Background())
	time.Sleep(80 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not quiesce within the deadline")
	}

	var persisted State
	found, err := store.Load("session-"+s.ID()+".json", &persisted)
	if err != nil || !found {
		t.Fatalf("persisted state missing: found=%v err=%v", found, err)
	}
	if persisted.ID != s.ID() || persisted.Strategy != "fake" {
		t.Errorf("persisted identity = %s/%s, want %s/fake", persisted.ID, persisted.Strategy, s.ID())
	}
	if len(persisted.BalanceSnapshots) == 0 {
		t.Error("no balance snapshots persisted")
	}
	if persisted.BalanceSnapshots[0].USDC != 1234 {
		t.Errorf("snapshot usdc = %v, want 1234", persisted.BalanceSnapshots[0].USDC)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestSession(Config{TickInterval: time.Hour, PersistInterval: time.Hour},
		&fakeStrategy{}, &fakeSessionOrders{}, nil, nil, nil)

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.State().Running {
		t.Fatal("session not running after start")
	}
	s.Stop()
	s.Stop()
	if s.State().Running {
		t.Fatal("session still running after stop")
	}
}
