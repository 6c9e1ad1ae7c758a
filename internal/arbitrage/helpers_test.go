package arbitrage

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

func testPair(n int) types.MarketPair {
	return types.MarketPair{
		ConditionID: fmt.Sprintf("0xcond%d", n),
		Slug:        fmt.Sprintf("test-market-%d", n),
		Question:    fmt.Sprintf("Will thing %d happen?", n),
		YesAssetID:  fmt.Sprintf("yes-%d", n),
		NoAssetID:   fmt.Sprintf("no-%d", n),
	}
}

func snap(assetID, conditionID string, bid, ask, size float64) *types.BookSnapshot {
	return &types.BookSnapshot{
		ConditionID: conditionID,
		AssetID:     assetID,
		Bids:        []types.BookLevel{{Price: bid, Size: size}},
		Asks:        []types.BookLevel{{Price: ask, Size: size}},
		FetchedAt:   time.Now(),
	}
}

// longBooks prices the pair so the combined effective buy cost is 0.98.
func longBooks(pair types.MarketPair, size float64) (yes, no *types.BookSnapshot) {
	yes = snap(pair.YesAssetID, pair.ConditionID, 0.47, 0.48, size)
	no = snap(pair.NoAssetID, pair.ConditionID, 0.49, 0.50, size)
	return yes, no
}

// shortBooks prices the pair so the combined effective sell revenue is 1.02.
func shortBooks(pair types.MarketPair, size float64) (yes, no *types.BookSnapshot) {
	yes = snap(pair.YesAssetID, pair.ConditionID, 0.52, 0.53, size)
	no = snap(pair.NoAssetID, pair.ConditionID, 0.50, 0.51, size)
	return yes, no
}

// efficientBooks prices the pair with no inefficiency in either direction.
func efficientBooks(pair types.MarketPair, size float64) (yes, no *types.BookSnapshot) {
	yes = snap(pair.YesAssetID, pair.ConditionID, 0.49, 0.51, size)
	no = snap(pair.NoAssetID, pair.ConditionID, 0.49, 0.51, size)
	return yes, no
}

func testOpportunity(pair types.MarketPair, yes, no *types.BookSnapshot) *Opportunity {
	sig, ok := evaluateBooks(yes, no, 0.005)
	if !ok {
		panic("test books carry no opportunity")
	}
	return NewOpportunity(pair, sig, yes, no)
}

// fakeSource is a scripted marketSource.
type fakeSource struct {
	mu      sync.Mutex
	markets []types.Market
	books   map[string]*types.BookSnapshot // by assetID
}

func newFakeSource() *fakeSource {
	return &fakeSource{books: make(map[string]*types.BookSnapshot)}
}

func (f *fakeSource) addMarket(pair types.MarketPair, volume float64, yes, no *types.BookSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, types.Market{
		ConditionID: pair.ConditionID,
		Slug:        pair.Slug,
		Question:    pair.Question,
		Active:      true,
		Volume24h:   volume,
		Tokens: []types.Token{
			{AssetID: pair.YesAssetID, Outcome: "Yes"},
			{AssetID: pair.NoAssetID, Outcome: "No"},
		},
	})
	f.books[pair.YesAssetID] = yes
	f.books[pair.NoAssetID] = no
}

func (f *fakeSource) setBooks(pair types.MarketPair, yes, no *types.BookSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[pair.YesAssetID] = yes
	f.books[pair.NoAssetID] = no
}

func (f *fakeSource) TrendingMarkets(_ context.Context, limit int) ([]types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.markets) > limit {
		return f.markets[:limit], nil
	}
	return f.markets, nil
}

func (f *fakeSource) PairBooks(_ context.Context, pair types.MarketPair) (*types.BookSnapshot, *types.BookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	yes, okYes := f.books[pair.YesAssetID]
	no, okNo := f.books[pair.NoAssetID]
	if !okYes || !okNo {
		return nil, nil, fmt.Errorf("no books for %s", pair.ConditionID)
	}
	return yes, no, nil
}

type orderCall struct {
	tokenID string
	side    string
	amount  float64
	price   float64
}

// fakeOrders fills every FOK leg at the requested amount unless the token is
// listed in failTokens.
type fakeOrders struct {
	mu         sync.Mutex
	calls      []orderCall
	failTokens map[string]bool
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{failTokens: make(map[string]bool)}
}

func (f *fakeOrders) CreateMarketOrder(_ context.Context, args clob.MarketOrderArgs) (*types.OrderSubmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orderCall{tokenID: args.TokenID, side: args.Side, amount: args.Amount, price: args.Price})

	if f.failTokens[args.TokenID] {
		return &types.OrderSubmissionResponse{Success: false, ErrorMsg: "FOK_ORDER_NOT_FILLED_ERROR"}, nil
	}

	resp := &types.OrderSubmissionResponse{Success: true, OrderID: "order-1", Status: "matched"}
	resp.MakingAmount = fmt.Sprintf("%g", args.Amount)
	if args.Side == types.SideBuy {
		resp.TakingAmount = fmt.Sprintf("%g", args.Amount/args.Price)
	} else {
		resp.TakingAmount = fmt.Sprintf("%g", args.Amount*args.Price)
	}
	return resp, nil
}

func (f *fakeOrders) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeSettler records the settlement call sequence.
type fakeSettler struct {
	mu       sync.Mutex
	calls    []string
	splitErr error
	mergeErr error
	receipt  *ethtypes.Receipt
}

func newFakeSettler() *fakeSettler {
	return &fakeSettler{
		receipt: &ethtypes.Receipt{GasUsed: 100000, EffectiveGasPrice: big.NewInt(30_000_000_000)},
	}
}

func (f *fakeSettler) Split(_ context.Context, _ common.Hash, amount float64, _ bool) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("split:%g", amount))
	if f.splitErr != nil {
		return nil, f.splitErr
	}
	return f.receipt, nil
}

func (f *fakeSettler) MergeByTokenIDs(_ context.Context, _ common.Hash, amount float64, _ bool) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("merge:%g", amount))
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	return f.receipt, nil
}

func (f *fakeSettler) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeBooks serves execution snapshots keyed by asset ID.
type fakeBooks struct {
	mu    sync.Mutex
	snaps map[string]*types.BookSnapshot
}

func newFakeBooks() *fakeBooks {
	return &fakeBooks{snaps: make(map[string]*types.BookSnapshot)}
}

func (f *fakeBooks) set(s *types.BookSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.AssetID] = s
}

func (f *fakeBooks) GetFreshBook(assetID string, ttl time.Duration) (*types.BookSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[assetID]
	if !ok || s.Stale(time.Now(), ttl) {
		return nil, false
	}
	return s, true
}

// fakeRecorder captures stored execution results.
type fakeRecorder struct {
	mu     sync.Mutex
	stored []*types.ExecutionResult
}

func (f *fakeRecorder) StoreExecution(_ context.Context, result *types.ExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, result)
	return nil
}

func staticBalance(usd float64) BalanceFunc {
	return func(context.Context) (float64, error) { return usd, nil }
}
