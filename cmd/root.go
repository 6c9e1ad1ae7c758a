package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-trader",
	Short: "Polymarket trading and market-intelligence platform",
	Long: `Automated trading platform for Polymarket binary prediction markets.

The run command starts the full service: an arbitrage scanner over the
market universe, realtime orderbook monitoring, whale discovery, follow
trading and a REST/WebSocket API. The remaining commands are one-shot
wallet utilities for account setup and settlement.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
