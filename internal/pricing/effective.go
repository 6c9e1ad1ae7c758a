package pricing

// EffectivePrices accounts for the mirror identity "buy YES at P is selling
// NO at 1-P": every entry takes the better of the direct quote and the
// implied quote from the opposite book. Naive top-of-book comparison double
// counts the same resting order and reports phantom arbitrage.
type EffectivePrices struct {
	BuyYes  float64 `json:"buyYes"`
	BuyNo   float64 `json:"buyNo"`
	SellYes float64 `json:"sellYes"`
	SellNo  float64 `json:"sellNo"`

	LongCost     float64 `json:"longCost"`
	ShortRevenue float64 `json:"shortRevenue"`
}

// ComputeEffective derives effective prices from the four top-of-book quotes.
// All inputs are decimal probabilities in (0,1].
func ComputeEffective(yesAsk, yesBid, noAsk, noBid float64) EffectivePrices {
	ep := EffectivePrices{
		BuyYes:  min(yesAsk, 1-noBid),
		BuyNo:   min(noAsk, 1-yesBid),
		SellYes: max(yesBid, 1-noAsk),
		SellNo:  max(noBid, 1-yesAsk),
	}
	ep.LongCost = ep.BuyYes + ep.BuyNo
	ep.ShortRevenue = ep.SellYes + ep.SellNo
	return ep
}

// ArbType distinguishes the two arbitrage directions.
type ArbType string

const (
	// ArbLong buys both outcomes below $1 and merges the pair.
	ArbLong ArbType = "long"
	// ArbShort splits collateral and sells both outcomes above $1.
	ArbShort ArbType = "short"
)

// ArbSignal is the output of the arbitrage predicate.
type ArbSignal struct {
	Type            ArbType         `json:"type"`
	Profit          float64         `json:"profit"`
	Action          string          `json:"action"`
	EffectivePrices EffectivePrices `json:"effectivePrices"`
}

// CheckArbitrage evaluates the arbitrage predicate with threshold epsilon.
// When both directions would qualify (possible only through mirror
// inefficiency), long wins: it needs no prior inventory.
func CheckArbitrage(yesAsk, yesBid, noAsk, noBid, epsilon float64) *ArbSignal {
	ep := ComputeEffective(yesAsk, yesBid, noAsk, noBid)

	if ep.LongCost < 1-epsilon {
		return &ArbSignal{
			Type:            ArbLong,
			Profit:          1 - ep.LongCost,
			Action:          "buy YES + buy NO, merge",
			EffectivePrices: ep,
		}
	}
	if ep.ShortRevenue > 1+epsilon {
		return &ArbSignal{
			Type:            ArbShort,
			Profit:          ep.ShortRevenue - 1,
			Action:          "split 1 USDC, sell both",
			EffectivePrices: ep,
		}
	}
	return nil
}
