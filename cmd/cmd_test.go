package cmd

import (
	"testing"
)

func TestRootCommandStructure(t *testing.T) {
	if rootCmd.Use != "polymarket-trader" {
		t.Errorf("Use = %q, want polymarket-trader", rootCmd.Use)
	}

	wantSubcommands := []string{"run", "approve", "balance", "redeem", "derive-api-creds"}
	for _, name := range wantSubcommands {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	flag := runCmd.Flags().Lookup("single-market")
	if flag == nil {
		t.Fatal("single-market flag not defined")
	}
	if flag.Shorthand != "s" {
		t.Errorf("single-market shorthand = %q, want s", flag.Shorthand)
	}
}

func TestApproveAmountParsing(t *testing.T) {
	approvalAmount = "unlimited"
	units, err := approvalUnits()
	if err != nil {
		t.Fatalf("approvalUnits: %v", err)
	}
	if units.Cmp(maxUint256) != 0 {
		t.Error("unlimited should approve max uint256")
	}

	approvalAmount = "125.50"
	units, err = approvalUnits()
	if err != nil {
		t.Fatalf("approvalUnits: %v", err)
	}
	if units.String() != "125500000" {
		t.Errorf("125.50 USDC = %s base units, want 125500000", units.String())
	}

	approvalAmount = "not-a-number"
	if _, err = approvalUnits(); err == nil {
		t.Error("expected error for malformed amount")
	}
	approvalAmount = "unlimited"
}

func TestRedeemCommandFlags(t *testing.T) {
	if redeemCmd.Flags().Lookup("dry-run") == nil {
		t.Error("dry-run flag not defined")
	}
	if redeemCmd.Flags().Lookup("market") == nil {
		t.Error("market flag not defined")
	}
}
