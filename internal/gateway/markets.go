package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/pricing"
	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// TrendingMarkets fetches active open markets ordered by 24h volume,
// paginating until limit rows are collected or the listing is exhausted.
// limit 0 means fetch everything available.
func (g *Gateway) TrendingMarkets(ctx context.Context, limit int) ([]types.Market, error) {
	var all []types.Market
	fetchAll := limit == 0
	offset := 0

	for {
		pageSize := MaxPageSize
		if !fetchAll {
			remaining := limit - len(all)
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		var page []types.Market
		params := map[string]string{
			"active":    "true",
			"closed":    "false",
			"limit":     strconv.Itoa(pageSize),
			"offset":    strconv.Itoa(offset),
			"order":     "volume24hr",
			"ascending": "false",
		}
		err := g.getJSON(ctx, ratelimit.ClassGamma, g.gamma, "/markets", params, &page)
		if err != nil {
			return nil, fmt.Errorf("fetch markets page at offset %d: %w", offset, err)
		}

		all = append(all, page...)
		offset += len(page)

		g.logger.Debug("fetched-markets-page",
			zap.Int("page-rows", len(page)),
			zap.Int("total", len(all)))

		if len(page) < pageSize {
			break
		}
		if !fetchAll && len(all) >= limit {
			break
		}
	}

	return all, nil
}

// MarketByID fetches one market by its Gamma id.
func (g *Gateway) MarketByID(ctx context.Context, id string) (*types.Market, error) {
	var market types.Market
	err := g.getJSON(ctx, ratelimit.ClassGamma, g.gamma, "/markets/"+id, nil, &market)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", id, err)
	}
	return &market, nil
}

// MarketByConditionID fetches one market by its condition id.
func (g *Gateway) MarketByConditionID(ctx context.Context, conditionID string) (*types.Market, error) {
	var markets []types.Market
	params := map[string]string{"condition_ids": conditionID}
	err := g.getJSON(ctx, ratelimit.ClassGamma, g.gamma, "/markets", params, &markets)
	if err != nil {
		return nil, fmt.Errorf("fetch market by condition %s: %w", conditionID, err)
	}
	if len(markets) == 0 {
		return nil, types.E(types.KindValidation, "gateway.MarketByConditionID",
			fmt.Sprintf("no market for condition %s", conditionID))
	}
	return &markets[0], nil
}

// RawBook fetches the unprocessed CLOB book for one asset.
func (g *Gateway) RawBook(ctx context.Context, assetID string) (*types.RawOrderbook, error) {
	var book types.RawOrderbook
	params := map[string]string{"token_id": assetID}
	err := g.getJSON(ctx, ratelimit.ClassCLOB, g.clob, "/book", params, &book)
	if err != nil {
		return nil, fmt.Errorf("fetch book for %s: %w", assetID, err)
	}
	return &book, nil
}

// ProcessedBook fetches and normalizes the book for one asset.
func (g *Gateway) ProcessedBook(ctx context.Context, assetID, conditionID, outcome string) (*types.BookSnapshot, error) {
	raw, err := g.RawBook(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return pricing.NormalizeBook(raw, conditionID, outcome, pricing.DefaultDepth, time.Now()), nil
}

// PairBooks fetches both normalized books of a market pair.
func (g *Gateway) PairBooks(ctx context.Context, pair types.MarketPair) (yes, no *types.BookSnapshot, err error) {
	yes, err = g.ProcessedBook(ctx, pair.YesAssetID, pair.ConditionID, "YES")
	if err != nil {
		return nil, nil, err
	}
	no, err = g.ProcessedBook(ctx, pair.NoAssetID, pair.ConditionID, "NO")
	if err != nil {
		return nil, nil, err
	}
	return yes, no, nil
}

// MarketTrades fetches recent trades for one market.
func (g *Gateway) MarketTrades(ctx context.Context, conditionID string, limit int) ([]types.ActivityEvent, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var trades []types.ActivityEvent
	params := map[string]string{
		"market": conditionID,
		"limit":  strconv.Itoa(limit),
	}
	err := g.getJSON(ctx, ratelimit.ClassData, g.data, "/trades", params, &trades)
	if err != nil {
		return nil, fmt.Errorf("fetch trades for %s: %w", conditionID, err)
	}
	return trades, nil
}

// PriceHistory fetches sampled midpoint prices for one asset. interval is
// an exchange bucket name like "1h" or "1d"; fidelity is the sample spacing
// in minutes (0 for the exchange default).
func (g *Gateway) PriceHistory(ctx context.Context, assetID, interval string, fidelity int) ([]types.PriceHistoryPoint, error) {
	params := map[string]string{
		"market":   assetID,
		"interval": interval,
	}
	if fidelity > 0 {
		params["fidelity"] = strconv.Itoa(fidelity)
	}
	var resp struct {
		History []types.PriceHistoryPoint `json:"history"`
	}
	err := g.getJSON(ctx, ratelimit.ClassCLOB, g.clob, "/prices-history", params, &resp)
	if err != nil {
		return nil, fmt.Errorf("fetch price history for %s: %w", assetID, err)
	}
	return resp.History, nil
}

// GlobalTrades fetches the most recent trades across all markets.
func (g *Gateway) GlobalTrades(ctx context.Context, limit int) ([]types.ActivityEvent, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var trades []types.ActivityEvent
	params := map[string]string{"limit": strconv.Itoa(limit)}
	err := g.getJSON(ctx, ratelimit.ClassData, g.data, "/trades", params, &trades)
	if err != nil {
		return nil, fmt.Errorf("fetch global trades: %w", err)
	}
	return trades, nil
}
