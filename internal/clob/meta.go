package clob

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

const metaTTL = time.Hour

func tickKey(tokenID string) string    { return "tick:" + tokenID }
func negRiskKey(tokenID string) string { return "negrisk:" + tokenID }

// TickSize returns the minimum price increment for a token, cached. Signing
// an order at the wrong tick gets it rejected, so stale entries are replaced
// by SetTickSize when the feed reports a change.
func (c *Client) TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	if v, ok := c.meta.Get(tickKey(tokenID)); ok {
		return v.(decimal.Decimal), nil
	}

	var resp types.TickSizeResponse
	if err := c.doPublic(ctx, "/tick-size", map[string]string{"token_id": tokenID}, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("tick size for %s: %w", tokenID, err)
	}
	if resp.MinimumTickSize <= 0 {
		return decimal.Zero, types.E(types.KindValidation, "clob.TickSize",
			fmt.Sprintf("exchange reported tick size %v for %s", resp.MinimumTickSize, tokenID))
	}

	tick := decimal.NewFromFloat(resp.MinimumTickSize)
	c.meta.Set(tickKey(tokenID), tick, metaTTL)
	return tick, nil
}

// SetTickSize overrides the cached tick, driven by tick_size_change feed
// events.
func (c *Client) SetTickSize(tokenID string, tick decimal.Decimal) {
	c.meta.Set(tickKey(tokenID), tick, metaTTL)
	c.logger.Info("tick-size-updated",
		zap.String("token_id", tokenID),
		zap.String("tick", tick.String()))
}

// IsNegRisk reports whether a token's market settles through the neg-risk
// adapter, cached. The flag selects the verifying contract for signing.
func (c *Client) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	if v, ok := c.meta.Get(negRiskKey(tokenID)); ok {
		return v.(bool), nil
	}

	var resp types.NegRiskResponse
	if err := c.doPublic(ctx, "/neg-risk", map[string]string{"token_id": tokenID}, &resp); err != nil {
		return false, fmt.Errorf("neg-risk flag for %s: %w", tokenID, err)
	}

	c.meta.Set(negRiskKey(tokenID), resp.NegRisk, metaTTL)
	return resp.NegRisk, nil
}

// SetNegRisk seeds the neg-risk flag from market metadata already in hand.
func (c *Client) SetNegRisk(tokenID string, negRisk bool) {
	c.meta.Set(negRiskKey(tokenID), negRisk, metaTTL)
}
