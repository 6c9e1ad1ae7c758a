package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
)

// Readiness is the result of the pre-trade account check.
type Readiness struct {
	USDCeBalance      float64 `json:"usdcEBalance"`
	NativeUSDCBalance float64 `json:"nativeUsdcBalance"`
	MaticBalance      float64 `json:"maticBalance"`
	Ready             bool    `json:"ready"`
	Suggestion        string  `json:"suggestion,omitempty"`

	CollateralApprovals map[string]bool `json:"collateralApprovals"`
	OperatorApprovals   map[string]bool `json:"operatorApprovals"`
}

// unlimitedThreshold treats anything above half of uint256 max as an
// unlimited allowance.
//
//nolint:gochecknoglobals // derived constant
var unlimitedThreshold = new(big.Int).Rsh(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)), 1)

// CheckReadyForCTF verifies everything trading requires: unlimited collateral
// allowance on both exchanges, conditional-token operator approval for both
// exchanges and the adapter, gas to submit, and at least minAmount of
// bridged collateral. Holding only native (non-bridged) USDC is the common
// failure and gets its own suggestion.
func (c *Client) CheckReadyForCTF(ctx context.Context, minAmount float64) (*Readiness, error) {
	r := &Readiness{
		CollateralApprovals: make(map[string]bool),
		OperatorApprovals:   make(map[string]bool),
	}

	usdceUnits, err := c.erc20Balance(ctx, USDCeAddress, c.funder)
	if err != nil {
		return nil, fmt.Errorf("usdce balance: %w", err)
	}
	r.USDCeBalance = unitsToUSDC(usdceUnits)

	nativeUnits, err := c.erc20Balance(ctx, USDCNativeAddress, c.funder)
	if err != nil {
		return nil, fmt.Errorf("native usdc balance: %w", err)
	}
	r.NativeUSDCBalance = unitsToUSDC(nativeUnits)

	var matic *big.Int
	err = c.limiter.Execute(ctx, ratelimit.ClassOnchain, func(ctx context.Context) error {
		var berr error
		matic, berr = c.reader.BalanceAt(ctx, c.address, nil)
		return berr
	})
	if err != nil {
		return nil, fmt.Errorf("gas balance: %w", err)
	}
	r.MaticBalance = weiToMatic(matic)

	exchanges := map[string]common.Address{
		"exchange":        ExchangeAddress,
		"negRiskExchange": NegRiskExchangeAddress,
	}
	for name, addr := range exchanges {
		allowance, aerr := c.erc20Allowance(ctx, USDCeAddress, c.funder, addr)
		if aerr != nil {
			return nil, fmt.Errorf("%s allowance: %w", name, aerr)
		}
		r.CollateralApprovals[name] = allowance.Cmp(unlimitedThreshold) >= 0
	}

	operators := map[string]common.Address{
		"exchange":        ExchangeAddress,
		"negRiskExchange": NegRiskExchangeAddress,
		"negRiskAdapter":  NegRiskAdapterAddress,
	}
	for name, addr := range operators {
		approved, oerr := c.isApprovedForAll(ctx, c.funder, addr)
		if oerr != nil {
			return nil, fmt.Errorf("%s operator approval: %w", name, oerr)
		}
		r.OperatorApprovals[name] = approved
	}

	r.Ready = true
	for _, ok := range r.CollateralApprovals {
		r.Ready = r.Ready && ok
	}
	for _, ok := range r.OperatorApprovals {
		r.Ready = r.Ready && ok
	}
	if r.MaticBalance <= 0 {
		r.Ready = false
		r.Suggestion = "top up POL for gas"
	}
	if r.USDCeBalance < minAmount {
		r.Ready = false
		if r.NativeUSDCBalance >= minAmount {
			r.Suggestion = "convert native USDC to bridged USDC.e; the exchange only settles in USDC.e"
		} else if r.Suggestion == "" {
			r.Suggestion = fmt.Sprintf("deposit at least %.2f USDC.e", minAmount)
		}
	}
	if r.Ready && r.Suggestion == "" && !allTrue(r.CollateralApprovals, r.OperatorApprovals) {
		r.Suggestion = "run the approve flow for both exchanges and the neg-risk adapter"
	}
	if !r.Ready && r.Suggestion == "" {
		r.Suggestion = "run the approve flow for both exchanges and the neg-risk adapter"
	}

	return r, nil
}

// CollateralBalance returns the funder's bridged-collateral balance in USDC.
func (c *Client) CollateralBalance(ctx context.Context) (float64, error) {
	units, err := c.erc20Balance(ctx, USDCeAddress, c.funder)
	if err != nil {
		return 0, err
	}
	return unitsToUSDC(units), nil
}

func allTrue(maps ...map[string]bool) bool {
	for _, m := range maps {
		for _, v := range m {
			if !v {
				return false
			}
		}
	}
	return true
}

func (c *Client) erc20Balance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.callView(ctx, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) erc20Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.callView(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) isApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	out, err := c.callView(ctx, ConditionalTokensAddress, conditionalTokensABI, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func weiToMatic(wei *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}
