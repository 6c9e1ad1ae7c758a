package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/dmarch/polymarket-trader/internal/gateway"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var redeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Redeem settled positions for USDC",
	Long: `Claims winning positions from resolved markets through the conditional
tokens contract, converting winning outcome tokens to USDC.e 1:1.

Example:
  # Preview redeemable positions
  polymarket-trader redeem --dry-run

  # Redeem everything resolved
  polymarket-trader redeem

  # Redeem one market
  polymarket-trader redeem --market will-x-happen`,
	RunE: runRedeem,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	redeemDryRun bool
	redeemMarket string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(redeemCmd)
	redeemCmd.Flags().BoolVar(&redeemDryRun, "dry-run", false, "List redeemable positions without sending transactions")
	redeemCmd.Flags().StringVar(&redeemMarket, "market", "", "Redeem only the market with this slug")
}

func runRedeem(cmd *cobra.Command, args []string) error {
	env, err := loadCmdEnv()
	if err != nil {
		return err
	}

	settler, err := env.settlementClient()
	if err != nil {
		return fmt.Errorf("settlement client: %w", err)
	}

	gw := gateway.New(gateway.Config{
		GammaBaseURL: env.cfg.GammaBaseURL,
		CLOBBaseURL:  env.cfg.CLOBBaseURL,
		DataBaseURL:  env.cfg.DataBaseURL,
		Limiter:      env.limiter,
		Logger:       env.logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	positions, err := gw.Positions(ctx, settler.Funder().Hex())
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}

	// One redeem call settles every outcome of a condition, so collapse
	// positions to unique conditions first.
	type redeemTarget struct {
		pos   types.Position
		value float64
	}
	targets := make(map[string]*redeemTarget)
	for _, pos := range positions {
		if !pos.Redeemable || pos.Size <= 0 {
			continue
		}
		if redeemMarket != "" && pos.Slug != redeemMarket {
			continue
		}
		if t, ok := targets[pos.ConditionID]; ok {
			t.value += pos.CurrentValue
			continue
		}
		targets[pos.ConditionID] = &redeemTarget{pos: pos, value: pos.CurrentValue}
	}

	if len(targets) == 0 {
		fmt.Printf("No redeemable positions\n")
		return nil
	}

	fmt.Printf("=== Redeemable Positions ===\n\n")
	for _, t := range targets {
		fmt.Printf("%s\n", t.pos.Title)
		fmt.Printf("  Condition: %s\n", t.pos.ConditionID)
		fmt.Printf("  Value: $%.2f\n\n", t.value)
	}

	if redeemDryRun {
		fmt.Printf("Dry run, no transactions sent\n")
		return nil
	}

	redeemed := 0
	for conditionID, t := range targets {
		condition := common.HexToHash(conditionID)

		reported, rerr := settler.PayoutReported(ctx, condition)
		if rerr != nil {
			fmt.Printf("Skipping %s: payout check failed: %v\n", t.pos.Slug, rerr)
			continue
		}
		if !reported {
			fmt.Printf("Skipping %s: oracle has not reported yet\n", t.pos.Slug)
			continue
		}

		fmt.Printf("Redeeming %s...\n", t.pos.Slug)
		receipt, rerr := settler.Redeem(ctx, condition, t.pos.NegRisk)
		if rerr != nil {
			fmt.Printf("  failed: %v\n", rerr)
			continue
		}
		fmt.Printf("  tx %s, gas used %d\n", receipt.TxHash.Hex(), receipt.GasUsed)
		redeemed++
	}

	fmt.Printf("\nRedeemed %d of %d conditions\n", redeemed, len(targets))
	return nil
}
