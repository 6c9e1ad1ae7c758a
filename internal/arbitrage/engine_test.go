package arbitrage

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/books"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// fakeSubscriber records feed subscriptions.
type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, assetIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, assetIDs...)
	return nil
}

func (f *fakeSubscriber) Unsubscribe(_ context.Context, assetIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, assetIDs...)
	return nil
}

// fakeBookSource serves snapshots plus the update stream.
type fakeBookSource struct {
	*fakeBooks
	mu         sync.Mutex
	registered map[string]bool
	updates    chan *books.Update
}

func newFakeBookSource() *fakeBookSource {
	return &fakeBookSource{
		fakeBooks:  newFakeBooks(),
		registered: make(map[string]bool),
		updates:    make(chan *books.Update, 10),
	}
}

func (f *fakeBookSource) RegisterPair(pair types.MarketPair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[pair.ConditionID] = true
}

func (f *fakeBookSource) UnregisterPair(pair types.MarketPair) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, pair.ConditionID)
}

func (f *fakeBookSource) Updates() <-chan *books.Update { return f.updates }

func newTestEngine(autoExecute bool) (*Engine, *fakeSubscriber, *fakeBookSource, *OpportunityCache, *fakeOrders, *fakeSettler) {
	sub := &fakeSubscriber{}
	source := newFakeBookSource()
	cache := NewOpportunityCache(zap.NewNop())
	orders := newFakeOrders()
	settle := newFakeSettler()

	executor := NewExecutor(ExecutorConfig{
		Epsilon:          0.005,
		MaxTradeUSD:      49,
		GasTokenPriceUSD: 0.5,
		Logger:           zap.NewNop(),
	}, orders, settle, source, staticBalance(10000), nil)

	rebalancer := NewRebalancer(RebalancerConfig{Logger: zap.NewNop()}, settle)

	engine := NewEngine(EngineConfig{
		Epsilon:     0.005,
		AutoExecute: autoExecute,
		Logger:      zap.NewNop(),
	}, sub, source, cache, executor, rebalancer, nil)
	return engine, sub, source, cache, orders, settle
}

func TestEngine_StartStopMarket(t *testing.T) {
	engine, sub, source, _, _, _ := newTestEngine(false)
	pair := testPair(1)
	ctx := context.Background()

	if err := engine.StartMarket(ctx, pair); err != nil {
		t.Fatalf("StartMarket() error = %v", err)
	}
	if state, ok := engine.MarketState(pair.ConditionID); !ok || state != StateMonitoring {
		t.Errorf("state = %s, want monitoring", state)
	}
	if len(sub.subscribed) != 2 {
		t.Errorf("subscribed assets = %v, want both outcomes", sub.subscribed)
	}
	if !source.registered[pair.ConditionID] {
		t.Error("pair not registered with the book manager")
	}

	if err := engine.StartMarket(ctx, pair); err == nil {
		t.Error("second StartMarket() for the same market succeeded")
	}

	if err := engine.StopMarket(ctx, pair.ConditionID); err != nil {
		t.Fatalf("StopMarket() error = %v", err)
	}
	if _, ok := engine.MarketState(pair.ConditionID); ok {
		t.Error("market still monitored after stop")
	}
	if len(sub.unsubscribed) != 2 {
		t.Errorf("unsubscribed assets = %v, want both outcomes", sub.unsubscribed)
	}
	if source.registered[pair.ConditionID] {
		t.Error("pair still registered after stop")
	}
}

func TestEngine_UpdateEmitsOpportunity(t *testing.T) {
	engine, _, source, cache, _, _ := newTestEngine(false)
	pair := testPair(1)
	ctx := context.Background()

	if err := engine.StartMarket(ctx, pair); err != nil {
		t.Fatalf("StartMarket() error = %v", err)
	}

	yes, no := longBooks(pair, 100)
	source.set(yes)
	source.set(no)

	engine.handleUpdate(ctx, &books.Update{Snapshot: yes, PairAssetID: pair.NoAssetID})

	select {
	case opp := <-engine.Opportunities():
		if opp.Pair.ConditionID != pair.ConditionID {
			t.Errorf("opportunity for %s, want %s", opp.Pair.ConditionID, pair.ConditionID)
		}
	default:
		t.Fatal("no opportunity emitted")
	}
	if _, ok := cache.Get(pair.ConditionID + ":long"); !ok {
		t.Error("opportunity not cached")
	}
}

func TestEngine_UpdateIgnoresUnmonitoredMarket(t *testing.T) {
	engine, _, source, cache, _, _ := newTestEngine(false)
	pair := testPair(1)

	yes, no := longBooks(pair, 100)
	source.set(yes)
	source.set(no)

	engine.handleUpdate(context.Background(), &books.Update{Snapshot: yes, PairAssetID: pair.NoAssetID})

	select {
	case <-engine.Opportunities():
		t.Fatal("opportunity emitted for an unmonitored market")
	default:
	}
	if got := len(cache.Snapshot()); got != 0 {
		t.Errorf("cached opportunities = %d, want 0", got)
	}
}

func TestEngine_UpdateWithoutPairContextIgnored(t *testing.T) {
	engine, _, source, _, _, _ := newTestEngine(false)
	pair := testPair(1)
	ctx := context.Background()

	if err := engine.StartMarket(ctx, pair); err != nil {
		t.Fatalf("StartMarket() error = %v", err)
	}
	yes, no := longBooks(pair, 100)
	source.set(yes)
	source.set(no)

	engine.handleUpdate(ctx, &books.Update{Snapshot: yes})

	select {
	case <-engine.Opportunities():
		t.Fatal("opportunity emitted for an unpaired update")
	default:
	}
}

func TestEngine_AutoExecuteRemovesExecutedOpportunity(t *testing.T) {
	engine, _, source, cache, orders, settle := newTestEngine(true)
	pair := testPair(1)
	ctx := context.Background()

	if err := engine.StartMarket(ctx, pair); err != nil {
		t.Fatalf("StartMarket() error = %v", err)
	}
	yes, no := longBooks(pair, 100)
	source.set(yes)
	source.set(no)

	engine.handleUpdate(ctx, &books.Update{Snapshot: yes, PairAssetID: pair.NoAssetID})

	if orders.callCount() != 2 {
		t.Fatalf("order legs = %d, want 2", orders.callCount())
	}
	if log := settle.callLog(); len(log) != 1 || log[0] != "merge:40" {
		t.Errorf("settlement calls = %v, want [merge:40]", log)
	}
	if _, ok := cache.Get(pair.ConditionID + ":long"); ok {
		t.Error("executed opportunity still cached")
	}
	if state, _ := engine.MarketState(pair.ConditionID); state != StateMonitoring {
		t.Errorf("state after execution = %s, want monitoring", state)
	}
}

func TestEngine_AutoExecuteImbalanceTriggersRebalance(t *testing.T) {
	engine, _, source, _, orders, settle := newTestEngine(true)
	pair := testPair(1)
	ctx := context.Background()

	if err := engine.StartMarket(ctx, pair); err != nil {
		t.Fatalf("StartMarket() error = %v", err)
	}
	yes, no := longBooks(pair, 100)
	source.set(yes)
	source.set(no)
	orders.failTokens[pair.NoAssetID] = true

	engine.handleUpdate(ctx, &books.Update{Snapshot: yes, PairAssetID: pair.NoAssetID})

	// With no position source wired, the rebalancer sees only USDC and
	// decides a split.
	if log := settle.callLog(); len(log) != 1 || log[0] != "split:5000" {
		t.Errorf("settlement calls = %v, want [split:5000]", log)
	}
	if state, _ := engine.MarketState(pair.ConditionID); state != StateMonitoring {
		t.Errorf("state after rebalance = %s, want monitoring", state)
	}
}
