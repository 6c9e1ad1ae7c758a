package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var deriveCredsCmd = &cobra.Command{
	Use:   "derive-api-creds",
	Short: "Derive exchange API credentials from the signing key",
	Long: `Derives (or creates, on first use) the L2 credential triple the
exchange requires for authenticated order operations, using an L1
signature from POLY_PRIVKEY.

The service derives credentials automatically at startup; this command
is for inspecting them or exporting them to another tool.`,
	RunE: runDeriveCreds,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(deriveCredsCmd)
}

func runDeriveCreds(cmd *cobra.Command, args []string) error {
	env, err := loadCmdEnv()
	if err != nil {
		return err
	}

	trader, err := env.clobClient()
	if err != nil {
		return fmt.Errorf("clob client: %w", err)
	}
	defer trader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := trader.Creds(ctx)
	if err != nil {
		return fmt.Errorf("derive credentials: %w", err)
	}

	fmt.Printf("=== API Credentials ===\n\n")
	fmt.Printf("Address: %s\n\n", trader.Address())
	fmt.Printf("POLY_API_KEY=%s\n", creds.Key)
	fmt.Printf("POLY_SECRET=%s\n", creds.Secret)
	fmt.Printf("POLY_PASSPHRASE=%s\n\n", creds.Passphrase)
	fmt.Printf("The triple is linked to your signing key. Keep it private.\n")

	return nil
}
