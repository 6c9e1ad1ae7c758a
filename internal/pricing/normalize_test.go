package pricing

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

func rawBook(bids, asks []types.PriceLevel) *types.RawOrderbook {
	return &types.RawOrderbook{
		Market:  "0xcond",
		AssetID: "111",
		Bids:    bids,
		Asks:    asks,
	}
}

func TestNormalizeBook_SortsAndAccumulates(t *testing.T) {
	raw := rawBook(
		[]types.PriceLevel{{Price: "0.45", Size: "100"}, {Price: "0.48", Size: "50"}},
		[]types.PriceLevel{{Price: "0.55", Size: "40"}, {Price: "0.52", Size: "60"}},
	)

	snap := NormalizeBook(raw, "0xcond", "YES", 25, time.Now())

	if snap.Bids[0].Price != 0.48 || snap.Bids[1].Price != 0.45 {
		t.Errorf("bids not descending: %+v", snap.Bids)
	}
	if snap.Asks[0].Price != 0.52 || snap.Asks[1].Price != 0.55 {
		t.Errorf("asks not ascending: %+v", snap.Asks)
	}

	wantCum := 0.48*50 + 0.45*100
	if math.Abs(snap.Bids[1].CumUSD-wantCum) > 1e-9 {
		t.Errorf("bid cumUSD = %v, want %v", snap.Bids[1].CumUSD, wantCum)
	}

	if bb := snap.BestBid(); bb == nil || bb.Price != 0.48 {
		t.Errorf("BestBid() = %+v, want 0.48", bb)
	}
	if ba := snap.BestAsk(); ba == nil || ba.Price != 0.52 {
		t.Errorf("BestAsk() = %+v, want 0.52", ba)
	}
}

func TestNormalizeBook_DropsInvalidLevels(t *testing.T) {
	raw := rawBook(
		[]types.PriceLevel{
			{Price: "0.50", Size: "10"},
			{Price: "0", Size: "10"},    // non-positive price
			{Price: "-0.1", Size: "10"}, // negative price
			{Price: "1.5", Size: "10"},  // above probability range
			{Price: "0.40", Size: "0"},  // zero size
			{Price: "NaN", Size: "10"},  // non-finite
			{Price: "oops", Size: "10"}, // unparseable
			{Price: "0.30", Size: "-5"}, // negative size
		},
		nil,
	)

	snap := NormalizeBook(raw, "0xcond", "YES", 25, time.Now())
	if len(snap.Bids) != 1 {
		t.Fatalf("bids = %+v, want single valid level", snap.Bids)
	}
	if snap.Bids[0].Price != 0.50 {
		t.Errorf("surviving bid price = %v, want 0.50", snap.Bids[0].Price)
	}
}

func TestNormalizeBook_MissingSide(t *testing.T) {
	snap := NormalizeBook(rawBook(nil, []types.PriceLevel{{Price: "0.52", Size: "5"}}), "0xcond", "YES", 25, time.Now())

	if snap.BestBid() != nil {
		t.Error("BestBid() should be nil on empty side")
	}
	if snap.BestAsk() == nil {
		t.Error("BestAsk() should be present")
	}
	if snap.Spread() != 0 {
		t.Errorf("Spread() = %v, want 0 with one empty side", snap.Spread())
	}
}

func TestNormalizeBook_DepthCap(t *testing.T) {
	levels := make([]types.PriceLevel, 40)
	for i := range levels {
		levels[i] = types.PriceLevel{Price: "0.50", Size: "1"}
	}
	snap := NormalizeBook(rawBook(levels, nil), "0xcond", "YES", 0, time.Now())

	if len(snap.Bids) != DefaultDepth {
		t.Errorf("len(bids) = %d, want default depth %d", len(snap.Bids), DefaultDepth)
	}
}

func TestNormalizeBook_Idempotent(t *testing.T) {
	raw := rawBook(
		[]types.PriceLevel{{Price: "0.45", Size: "100"}, {Price: "0.48", Size: "50"}},
		[]types.PriceLevel{{Price: "0.55", Size: "40"}, {Price: "0.52", Size: "60"}},
	)
	at := time.Unix(1700000000, 0)

	a := NormalizeBook(raw, "0xcond", "YES", 25, at)
	b := NormalizeBook(raw, "0xcond", "YES", 25, at)
	if !reflect.DeepEqual(a, b) {
		t.Error("NormalizeBook not deterministic on equal inputs")
	}
}

func TestBookSnapshot_Stale(t *testing.T) {
	now := time.Now()
	snap := NormalizeBook(rawBook(nil, nil), "0xcond", "YES", 25, now.Add(-2500*time.Millisecond))

	if !snap.Stale(now, 2*time.Second) {
		t.Error("snapshot 2500ms old must be stale under 2s TTL")
	}
	if snap.Stale(now, 3*time.Second) {
		t.Error("snapshot 2500ms old must be fresh under 3s TTL")
	}
}

func TestSideDepthUSD(t *testing.T) {
	raw := rawBook([]types.PriceLevel{{Price: "0.50", Size: "100"}, {Price: "0.40", Size: "50"}}, nil)
	snap := NormalizeBook(raw, "0xcond", "YES", 25, time.Now())

	want := 0.50*100 + 0.40*50
	if got := SideDepthUSD(snap.Bids); math.Abs(got-want) > 1e-9 {
		t.Errorf("SideDepthUSD = %v, want %v", got, want)
	}
	if got := SideDepthUSD(nil); got != 0 {
		t.Errorf("SideDepthUSD(nil) = %v, want 0", got)
	}
}
