// Package arbitrage detects and executes paired-outcome arbitrage: a deep
// scanner sweeps the active-market universe on an interval, a realtime
// evaluator reacts to book updates on monitored markets, and the executor
// turns qualifying opportunities into order legs plus an on-chain settlement
// step. A rebalancer keeps the wallet's USDC-to-token ratio inside a band so
// half-filled executions can recover.
package arbitrage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmarch/polymarket-trader/internal/pricing"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Opportunity is one detected price inefficiency on a binary market.
// Sizes are in outcome shares; RecommendedSize already carries the safety
// factor and all caps.
type Opportunity struct {
	ID               string                  `json:"id"`
	Pair             types.MarketPair        `json:"pair"`
	Type             pricing.ArbType         `json:"type"`
	ProfitRate       float64                 `json:"profitRate"` // per share, before gas
	Action           string                  `json:"action"`
	Prices           pricing.EffectivePrices `json:"prices"`
	MaxOrderbookSize float64                 `json:"maxOrderbookSize"`
	MaxBalanceSize   float64                 `json:"maxBalanceSize"`
	RecommendedSize  float64                 `json:"recommendedSize"`
	DetectedAt       time.Time               `json:"detectedAt"`
}

// NewOpportunity builds an Opportunity from a predicate signal and the
// paired books.
func NewOpportunity(pair types.MarketPair, sig *pricing.ArbSignal, yes, no *types.BookSnapshot) *Opportunity {
	return &Opportunity{
		ID:               uuid.New().String(),
		Pair:             pair,
		Type:             sig.Type,
		ProfitRate:       sig.Profit,
		Action:           sig.Action,
		Prices:           sig.EffectivePrices,
		MaxOrderbookSize: orderbookSize(sig, yes, no),
		DetectedAt:       time.Now(),
	}
}

// orderbookSize is the share size the books support: for a long arb the
// smaller top-ask size of the two outcomes, for a short arb the smaller top
// bid.
func orderbookSize(sig *pricing.ArbSignal, yes, no *types.BookSnapshot) float64 {
	var yesLevel, noLevel *types.BookLevel
	if sig.Type == pricing.ArbLong {
		yesLevel, noLevel = yes.BestAsk(), no.BestAsk()
	} else {
		yesLevel, noLevel = yes.BestBid(), no.BestBid()
	}
	if yesLevel == nil || noLevel == nil {
		return 0
	}
	return min(yesLevel.Size, noLevel.Size)
}

// Key identifies an opportunity for caching: one slot per market and
// direction.
func (o *Opportunity) Key() string {
	return o.Pair.ConditionID + ":" + string(o.Type)
}

func (o *Opportunity) String() string {
	return fmt.Sprintf("Opportunity[%s] %s %s profit=%.4f size=%.2f",
		o.ID[:8], o.Pair.Slug, o.Type, o.ProfitRate, o.RecommendedSize)
}

// costPerShare is the collateral one share of this opportunity ties up:
// the combined buy cost for a long, one full dollar of split collateral for
// a short.
func (o *Opportunity) costPerShare() float64 {
	if o.Type == pricing.ArbLong {
		return o.Prices.LongCost
	}
	return 1.0
}
