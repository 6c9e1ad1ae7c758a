package gateway

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// AddressMode selects which query parameter names the wallet on the activity
// endpoints. ModeAuto tries "user" first and falls back to "proxyWallet" when
// the first form returns nothing.
type AddressMode string

const (
	ModeUser        AddressMode = "user"
	ModeProxyWallet AddressMode = "proxyWallet"
	ModeAuto        AddressMode = "auto"
)

// UserActivity fetches one page of a wallet's activity.
func (g *Gateway) UserActivity(ctx context.Context, address string, mode AddressMode, limit, offset int, typeFilter string) ([]types.ActivityEvent, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	fetch := func(param string) ([]types.ActivityEvent, error) {
		params := map[string]string{
			param:    address,
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}
		if typeFilter != "" {
			params["type"] = typeFilter
		}
		var events []types.ActivityEvent
		err := g.getJSON(ctx, ratelimit.ClassData, g.data, "/activity", params, &events)
		if err != nil {
			return nil, err
		}
		return events, nil
	}

	switch mode {
	case ModeUser:
		return fetch("user")
	case ModeProxyWallet:
		return fetch("proxyWallet")
	default:
		events, err := fetch("user")
		if err == nil && len(events) > 0 {
			return events, nil
		}
		if err != nil {
			g.logger.Debug("activity-user-param-failed",
				zap.String("address", address),
				zap.Error(err))
		}
		return fetch("proxyWallet")
	}
}

// GetAllActivity pages through a wallet's activity until maxRows rows are
// collected or a short page signals the end. The result is
// timestamp-descending with duplicate transaction hashes suppressed.
func (g *Gateway) GetAllActivity(ctx context.Context, address string, maxRows int, typeFilter string) ([]types.ActivityEvent, error) {
	if maxRows <= 0 {
		maxRows = MaxPageSize
	}

	var all []types.ActivityEvent
	seen := make(map[string]bool)
	offset := 0

	for len(all) < maxRows {
		pageSize := MaxPageSize
		if remaining := maxRows - len(all); remaining < pageSize {
			pageSize = remaining
		}

		page, err := g.UserActivity(ctx, address, ModeAuto, pageSize, offset, typeFilter)
		if err != nil {
			return nil, fmt.Errorf("fetch activity page at offset %d: %w", offset, err)
		}

		rawCount := len(page)
		for i := range page {
			fp := page[i].Fingerprint()
			if seen[fp] {
				continue
			}
			seen[fp] = true
			all = append(all, page[i])
		}
		offset += rawCount

		if rawCount < pageSize {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })

	if len(all) > maxRows {
		all = all[:maxRows]
	}
	return all, nil
}

// UserTrades fetches a wallet's trade events only.
func (g *Gateway) UserTrades(ctx context.Context, address string, maxRows int) ([]types.ActivityEvent, error) {
	return g.GetAllActivity(ctx, address, maxRows, types.ActivityTrade)
}

// Positions fetches a wallet's open positions.
func (g *Gateway) Positions(ctx context.Context, address string) ([]types.Position, error) {
	var positions []types.Position
	params := map[string]string{"user": address}
	err := g.getJSON(ctx, ratelimit.ClassData, g.data, "/positions", params, &positions)
	if err != nil {
		return nil, fmt.Errorf("fetch positions for %s: %w", address, err)
	}
	return positions, nil
}

// Leaderboard fetches the volume or profit leaderboard for a window
// ("1d", "7d", "30d", "all").
func (g *Gateway) Leaderboard(ctx context.Context, board, window string, limit int) ([]types.LeaderboardEntry, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	board = strings.ToLower(board)
	if board != "volume" && board != "profit" {
		return nil, types.E(types.KindValidation, "gateway.Leaderboard",
			fmt.Sprintf("unknown board %q", board))
	}

	var entries []types.LeaderboardEntry
	params := map[string]string{
		"window": window,
		"limit":  strconv.Itoa(limit),
		"rankBy": board,
	}
	err := g.getJSON(ctx, ratelimit.ClassData, g.data, "/leaderboard", params, &entries)
	if err != nil {
		return nil, fmt.Errorf("fetch %s leaderboard: %w", board, err)
	}
	return entries, nil
}
