package whale

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/storage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// fakeActivity serves scripted histories per address.
type fakeActivity struct {
	mu        sync.Mutex
	events    map[string][]types.ActivityEvent
	positions map[string][]types.Position
	fetches   int
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{
		events:    make(map[string][]types.ActivityEvent),
		positions: make(map[string][]types.Position),
	}
}

func (f *fakeActivity) GetAllActivity(_ context.Context, address string, _ int, _ string) ([]types.ActivityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.events[address], nil
}

func (f *fakeActivity) Positions(_ context.Context, address string) ([]types.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[address], nil
}

func (f *fakeActivity) setEvents(address string, events []types.ActivityEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[address] = events
}

func profitableHistory(now time.Time) []types.ActivityEvent {
	return []types.ActivityEvent{
		redeemEvent("0xa", 30000, now.Add(-time.Hour)),
		tradeEvent("0xa", types.SideBuy, 20000, now.Add(-2*time.Hour)),
		redeemEvent("0xb", 15000, now.Add(-3*time.Hour)),
		tradeEvent("0xb", types.SideBuy, 10000, now.Add(-4*time.Hour)),
	}
}

func TestWalletCache_RefreshAndGet(t *testing.T) {
	source := newFakeActivity()
	source.setEvents("0xwhale", profitableHistory(time.Now()))

	cache := NewWalletCache(Config{}, source, nil, zap.NewNop())
	cache.refresh(context.Background(), "0xwhale")

	entry, ok := cache.Get("0xWHALE") // lookups are case-insensitive
	if !ok {
		t.Fatal("entry missing after refresh")
	}
	all := entry.Windows[WindowAll]
	if all == nil {
		t.Fatal("all window is nil")
	}
	if all.PnL != 15000 {
		t.Errorf("PnL = %g, want 15000", all.PnL)
	}
	if all.TradeCount != 2 {
		t.Errorf("TradeCount = %d, want 2", all.TradeCount)
	}
}

func TestWalletCache_EmptyFetchDoesNotOverwrite(t *testing.T) {
	source := newFakeActivity()
	source.setEvents("0xwhale", profitableHistory(time.Now()))

	cache := NewWalletCache(Config{}, source, nil, zap.NewNop())
	cache.refresh(context.Background(), "0xwhale")

	before, ok := cache.Get("0xwhale")
	if !ok {
		t.Fatal("entry missing after first refresh")
	}

	// The next refresh returns nothing; the cached numbers must survive and
	// updatedAt must not advance.
	source.setEvents("0xwhale", nil)
	cache.refresh(context.Background(), "0xwhale")

	after, ok := cache.Get("0xwhale")
	if !ok {
		t.Fatal("entry vanished after empty refresh")
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Error("UpdatedAt advanced on an empty refresh")
	}
	if after.Windows[WindowAll] == nil || after.Windows[WindowAll].PnL != 15000 {
		t.Error("metrics were overwritten by an empty refresh")
	}
}

func TestWalletCache_TTLExpiry(t *testing.T) {
	cache := NewWalletCache(Config{CacheTTL: time.Hour}, newFakeActivity(), nil, zap.NewNop())
	cache.entries["0xold"] = &CacheEntry{
		Address:   "0xold",
		UpdatedAt: time.Now().Add(-2 * time.Hour),
		Windows:   map[Window]*WindowMetrics{WindowAll: {TradeCount: 5}},
	}

	if _, ok := cache.Get("0xold"); ok {
		t.Error("expired entry served")
	}
}

func TestWalletCache_BulkEnqueuesMisses(t *testing.T) {
	cache := NewWalletCache(Config{}, newFakeActivity(), nil, zap.NewNop())
	cache.entries["0xhit"] = &CacheEntry{
		Address:   "0xhit",
		UpdatedAt: time.Now(),
		Windows:   map[Window]*WindowMetrics{WindowAll: {TradeCount: 5}},
	}

	got := cache.Bulk([]string{"0xhit", "0xmiss", "0xmiss"})
	if len(got) != 1 {
		t.Fatalf("Bulk() hits = %d, want 1", len(got))
	}
	if _, ok := got["0xhit"]; !ok {
		t.Error("cached address missing from bulk result")
	}

	// The miss is queued exactly once.
	if depth := len(cache.queue); depth != 1 {
		t.Errorf("queue depth = %d, want 1 (deduplicated)", depth)
	}
}

func TestWalletCache_PersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	source := newFakeActivity()
	source.setEvents("0xwhale", profitableHistory(time.Now()))

	cache := NewWalletCache(Config{}, source, store, zap.NewNop())
	cache.refresh(context.Background(), "0xwhale")

	reloaded := NewWalletCache(Config{}, newFakeActivity(), store, zap.NewNop())
	entry, ok := reloaded.Get("0xwhale")
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if entry.Windows[WindowAll] == nil || entry.Windows[WindowAll].PnL != 15000 {
		t.Error("reloaded metrics differ")
	}
}
