package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dmarch/polymarket-trader/internal/app"
	"github.com/dmarch/polymarket-trader/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading platform",
	Long: `Starts the platform, which will:
1. Scan the market universe for arbitrage opportunities
2. Monitor live orderbooks for detected markets over WebSocket
3. Discover and track high-performing wallets
4. Serve the REST and WebSocket API

With POLY_PRIVKEY set the execution engine places and settles trades;
without it the platform runs in observer mode.

Use --single-market to pin realtime monitoring to one market for debugging.`,
	RunE: runPlatform,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("single-market", "s", "", "Monitor only a single market by slug (for debugging)")
}

func runPlatform(cmd *cobra.Command, args []string) error {
	// Missing .env is fine; plain environment variables also work.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	singleMarket, _ := cmd.Flags().GetString("single-market")

	application, err := app.New(cfg, logger, &app.Options{
		SingleMarket: singleMarket,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
