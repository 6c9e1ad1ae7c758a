package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// ConsoleStorage implements Storage by pretty-printing to stdout. The
// default when no database is configured.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{logger: logger}
}

const consoleRule = "------------------------------------------------------------------------"

// StoreOpportunity pretty-prints a detected opportunity.
func (c *ConsoleStorage) StoreOpportunity(_ context.Context, opp *arbitrage.Opportunity) error {
	fmt.Println("\n" + consoleRule)
	fmt.Printf("ARBITRAGE OPPORTUNITY DETECTED\n")
	fmt.Println(consoleRule)
	fmt.Printf("ID:       %s\n", shortID(opp.ID))
	fmt.Printf("Market:   %s\n", opp.Pair.Slug)
	fmt.Printf("Question: %s\n", opp.Pair.Question)
	fmt.Printf("Type:     %s\n", opp.Type)
	fmt.Printf("Time:     %s\n", opp.DetectedAt.Format("2006-01-02 15:04:05"))
	fmt.Println(consoleRule)
	fmt.Printf("EFFECTIVE PRICES\n")
	fmt.Printf("  Buy YES:   %.4f    Sell YES:  %.4f\n", opp.Prices.BuyYes, opp.Prices.SellYes)
	fmt.Printf("  Buy NO:    %.4f    Sell NO:   %.4f\n", opp.Prices.BuyNo, opp.Prices.SellNo)
	fmt.Printf("  Long cost: %.4f    Short rev: %.4f\n", opp.Prices.LongCost, opp.Prices.ShortRevenue)
	fmt.Println(consoleRule)
	fmt.Printf("SIZING\n")
	fmt.Printf("  Profit rate:      %.4f/share\n", opp.ProfitRate)
	fmt.Printf("  Book size:        %.2f\n", opp.MaxOrderbookSize)
	fmt.Printf("  Balance size:     %.2f\n", opp.MaxBalanceSize)
	fmt.Printf("  Recommended:      %.2f (%s)\n", opp.RecommendedSize, opp.Action)
	fmt.Println(consoleRule)
	return nil
}

// StoreExecution pretty-prints an execution attempt.
func (c *ConsoleStorage) StoreExecution(_ context.Context, result *types.ExecutionResult) error {
	fmt.Println("\n" + consoleRule)
	if result.Success {
		fmt.Printf("ARBITRAGE EXECUTED\n")
	} else {
		fmt.Printf("ARBITRAGE EXECUTION FAILED (%s)\n", result.FailureKind)
	}
	fmt.Println(consoleRule)
	fmt.Printf("Opportunity: %s\n", shortID(result.OpportunityID))
	fmt.Printf("Market:      %s\n", result.MarketSlug)
	fmt.Printf("Type:        %s\n", result.Type)
	fmt.Printf("Time:        %s\n", result.ExecutedAt.Format("2006-01-02 15:04:05"))
	if result.YesTrade != nil {
		fmt.Printf("YES leg:     %s %.2f @ %.4f\n", result.YesTrade.Side, result.YesTrade.Size, result.YesTrade.Price)
	}
	if result.NoTrade != nil {
		fmt.Printf("NO leg:      %s %.2f @ %.4f\n", result.NoTrade.Side, result.NoTrade.Size, result.NoTrade.Price)
	}
	if result.MergedPairs > 0 {
		fmt.Printf("Merged:      %.2f pairs\n", result.MergedPairs)
	}
	if result.SplitAmount > 0 {
		fmt.Printf("Split:       %.2f USDC\n", result.SplitAmount)
	}
	fmt.Printf("Gas:         $%.4f\n", result.GasCostUSD)
	fmt.Printf("Profit:      $%.4f\n", result.RealizedProfit)
	if result.Error != "" {
		fmt.Printf("Error:       %s\n", result.Error)
	}
	fmt.Println(consoleRule)
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
