package cmd

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dmarch/polymarket-trader/internal/settlement"
)

//nolint:gochecknoglobals // Cobra boilerplate
var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Grant the exchange contracts access to your collateral and positions",
	Long: `Runs the one-time on-chain approval flow trading requires:
- USDC.e allowance for the CTF Exchange, the neg-risk exchange, the
  conditional tokens contract and the neg-risk adapter
- ERC1155 operator approval on conditional tokens for the exchanges and
  the neg-risk adapter

Approves unlimited spending by default; pass --amount for a bounded
allowance. Already-granted approvals are skipped.`,
	RunE: runApprove,
}

//nolint:gochecknoglobals // Cobra boilerplate
var approvalAmount string

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(approveCmd)
	approveCmd.Flags().StringVarP(&approvalAmount, "amount", "a", "unlimited", "Approval amount (unlimited, or a USDC amount)")
}

//nolint:gochecknoglobals // derived constant
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

func approvalUnits() (*big.Int, error) {
	if approvalAmount == "unlimited" {
		return maxUint256, nil
	}
	amount, err := decimal.NewFromString(approvalAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", approvalAmount, err)
	}
	return amount.Shift(6).BigInt(), nil
}

func runApprove(cmd *cobra.Command, args []string) error {
	env, err := loadCmdEnv()
	if err != nil {
		return err
	}

	units, err := approvalUnits()
	if err != nil {
		return err
	}

	settler, err := env.settlementClient()
	if err != nil {
		return fmt.Errorf("settlement client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Printf("=== Trading Approvals ===\n\n")
	fmt.Printf("Signer: %s\n", settler.Address().Hex())
	fmt.Printf("Funder: %s\n", settler.Funder().Hex())
	fmt.Printf("RPC:    %s\n\n", env.cfg.RPCEndpoint())

	ready, err := settler.CheckReadyForCTF(ctx, 0)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}

	collateralSpenders := map[string]common.Address{
		"exchange":          settlement.ExchangeAddress,
		"negRiskExchange":   settlement.NegRiskExchangeAddress,
		"conditionalTokens": settlement.ConditionalTokensAddress,
		"negRiskAdapter":    settlement.NegRiskAdapterAddress,
	}
	for name, spender := range collateralSpenders {
		if ready.CollateralApprovals[name] {
			fmt.Printf("USDC.e allowance for %s already set, skipping\n", name)
			continue
		}
		fmt.Printf("Approving USDC.e for %s (%s)...\n", name, spender.Hex())
		receipt, aerr := settler.ApproveErc20(ctx, settlement.USDCeAddress, spender, units)
		if aerr != nil {
			return fmt.Errorf("approve %s: %w", name, aerr)
		}
		fmt.Printf("  tx %s, gas used %d\n", receipt.TxHash.Hex(), receipt.GasUsed)
	}

	operators := map[string]common.Address{
		"exchange":        settlement.ExchangeAddress,
		"negRiskExchange": settlement.NegRiskExchangeAddress,
		"negRiskAdapter":  settlement.NegRiskAdapterAddress,
	}
	for name, operator := range operators {
		if ready.OperatorApprovals[name] {
			fmt.Printf("Operator approval for %s already set, skipping\n", name)
			continue
		}
		fmt.Printf("Approving conditional tokens operator %s (%s)...\n", name, operator.Hex())
		receipt, oerr := settler.SetApprovalForAll1155(ctx, operator, true)
		if oerr != nil {
			return fmt.Errorf("set operator %s: %w", name, oerr)
		}
		fmt.Printf("  tx %s, gas used %d\n", receipt.TxHash.Hex(), receipt.GasUsed)
	}

	fmt.Printf("\n=== Approvals Complete ===\n")
	fmt.Printf("Check balances and readiness with: polymarket-trader balance\n")
	return nil
}
