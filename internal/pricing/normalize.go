// Package pricing holds the pure pricing math: orderbook normalization,
// effective prices under the YES/NO mirror identity, and the arbitrage
// predicate.
package pricing

import (
	"math"
	"sort"
	"time"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// DefaultDepth is how many levels per side a normalized book keeps.
const DefaultDepth = 25

// NormalizeBook converts a raw CLOB book into a BookSnapshot: rows with
// non-finite or non-positive price/size are dropped, bids sort descending and
// asks ascending, and each level carries the running price*size USD sum.
// Normalization is deterministic and idempotent on equal inputs.
func NormalizeBook(raw *types.RawOrderbook, conditionID, outcome string, depth int, fetchedAt time.Time) *types.BookSnapshot {
	if depth <= 0 {
		depth = DefaultDepth
	}

	snap := &types.BookSnapshot{
		ConditionID: conditionID,
		AssetID:     raw.AssetID,
		Outcome:     outcome,
		Bids:        normalizeSide(raw.Bids, depth, false),
		Asks:        normalizeSide(raw.Asks, depth, true),
		FetchedAt:   fetchedAt,
	}
	return snap
}

func normalizeSide(levels []types.PriceLevel, depth int, ascending bool) []types.BookLevel {
	out := make([]types.BookLevel, 0, len(levels))
	for _, l := range levels {
		price, size, err := l.Float()
		if err != nil {
			continue
		}
		if !validLevel(price, size) {
			continue
		}
		out = append(out, types.BookLevel{Price: price, Size: size})
	}

	if ascending {
		sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	}

	if len(out) > depth {
		out = out[:depth]
	}

	cum := 0.0
	for i := range out {
		cum += out[i].Price * out[i].Size
		out[i].CumUSD = cum
	}
	return out
}

func validLevel(price, size float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) || math.IsNaN(size) || math.IsInf(size, 0) {
		return false
	}
	return price > 0 && price <= 1 && size > 0
}

// SideDepthUSD returns the total cumulative USD on a normalized side.
func SideDepthUSD(levels []types.BookLevel) float64 {
	if len(levels) == 0 {
		return 0
	}
	return levels[len(levels)-1].CumUSD
}
