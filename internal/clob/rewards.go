package clob

import (
	"context"
	"regexp"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// RewardMarket is one market's liquidity-reward configuration with the
// account's current standing in it.
type RewardMarket struct {
	ConditionID  string  `json:"condition_id"`
	Question     string  `json:"question"`
	RewardsDaily float64 `json:"rewards_daily_rate"`
	MinSize      float64 `json:"rewards_min_size"`
	MaxSpread    float64 `json:"rewards_max_spread"`
	Earnings     float64 `json:"earnings,string"`
	EarningsPct  float64 `json:"earning_percentage,string"`
}

// RewardMarkets lists the markets where the account currently accrues
// liquidity rewards.
func (c *Client) RewardMarkets(ctx context.Context) ([]RewardMarket, error) {
	var page struct {
		Data []RewardMarket `json:"data"`
	}
	if err := c.doL2(ctx, "GET", "/rewards/user/markets", nil, nil, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

// DailyEarning is one day's reward payout for one market.
type DailyEarning struct {
	Date         string  `json:"date"`
	ConditionID  string  `json:"condition_id"`
	AssetAddress string  `json:"asset_address"`
	Earnings     float64 `json:"earnings"`
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// DailyEarnings returns the account's reward earnings for one UTC day
// (format 2006-01-02).
func (c *Client) DailyEarnings(ctx context.Context, day string) ([]DailyEarning, error) {
	if !dayPattern.MatchString(day) {
		return nil, types.E(types.KindValidation, "clob.DailyEarnings", "day must be formatted YYYY-MM-DD")
	}
	var out []DailyEarning
	if err := c.doL2(ctx, "GET", "/rewards/user", map[string]string{"date": day}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
