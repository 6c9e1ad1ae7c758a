package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmarch/polymarket-trader/internal/gateway"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check wallet balances, approvals and positions",
	Long: `Displays the trading account state:
- POL balance (for gas)
- bridged USDC.e and native USDC balances
- exchange approval status
- open positions from the data API`,
	RunE: runBalance,
}

//nolint:gochecknoglobals // Cobra boilerplate
var balanceShowPositions bool

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().BoolVarP(&balanceShowPositions, "positions", "p", true, "Show open positions")
}

func runBalance(cmd *cobra.Command, args []string) error {
	env, err := loadCmdEnv()
	if err != nil {
		return err
	}

	settler, err := env.settlementClient()
	if err != nil {
		return fmt.Errorf("settlement client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("=== Wallet Balance Sheet ===\n\n")
	fmt.Printf("Signer: %s\n", settler.Address().Hex())
	fmt.Printf("Funder: %s\n\n", settler.Funder().Hex())

	ready, err := settler.CheckReadyForCTF(ctx, env.cfg.ArbMinTradeSize)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}

	fmt.Printf("POL Balance:         %.6f\n", ready.MaticBalance)
	fmt.Printf("USDC.e Balance:      %.2f\n", ready.USDCeBalance)
	fmt.Printf("Native USDC Balance: %.2f\n\n", ready.NativeUSDCBalance)

	fmt.Printf("Collateral approvals:\n")
	for name, ok := range ready.CollateralApprovals {
		fmt.Printf("  %-16s %v\n", name, ok)
	}
	fmt.Printf("Operator approvals:\n")
	for name, ok := range ready.OperatorApprovals {
		fmt.Printf("  %-16s %v\n", name, ok)
	}

	if balanceShowPositions {
		gw := gateway.New(gateway.Config{
			GammaBaseURL: env.cfg.GammaBaseURL,
			CLOBBaseURL:  env.cfg.CLOBBaseURL,
			DataBaseURL:  env.cfg.DataBaseURL,
			Limiter:      env.limiter,
			Logger:       env.logger,
		})

		positions, perr := gw.Positions(ctx, settler.Funder().Hex())
		if perr != nil {
			fmt.Printf("\nError fetching positions: %v\n", perr)
		} else if len(positions) == 0 {
			fmt.Printf("\nNo open positions\n")
		} else {
			fmt.Printf("\n=== Open Positions ===\n\n")
			total := 0.0
			for _, pos := range positions {
				fmt.Printf("%s\n", pos.Title)
				fmt.Printf("  Outcome: %s\n", pos.Outcome)
				fmt.Printf("  Size: %.2f tokens @ %.3f avg\n", pos.Size, pos.AvgPrice)
				fmt.Printf("  Value: $%.2f (PnL $%.2f)\n\n", pos.CurrentValue, pos.CashPnL)
				total += pos.CurrentValue
			}
			fmt.Printf("Total Position Value: $%.2f\n", total)
		}
	}

	fmt.Printf("\n=== Summary ===\n")
	if ready.Ready {
		fmt.Printf("Ready to trade: yes\n")
	} else {
		fmt.Printf("Ready to trade: no\n")
		if ready.Suggestion != "" {
			fmt.Printf("  %s\n", ready.Suggestion)
		}
	}

	return nil
}
