package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.APIPort != "8080" {
		t.Errorf("APIPort = %q, want 8080", cfg.APIPort)
	}
	if cfg.ArbScanInterval != 30*time.Second {
		t.Errorf("ArbScanInterval = %v, want 30s", cfg.ArbScanInterval)
	}
	if cfg.ArbMinVolume != 100.0 {
		t.Errorf("ArbMinVolume = %v, want 100", cfg.ArbMinVolume)
	}
	if cfg.ArbMaxMarkets != 500 {
		t.Errorf("ArbMaxMarkets = %v, want 500", cfg.ArbMaxMarkets)
	}
	if cfg.ArbBookTTL != 2*time.Second {
		t.Errorf("ArbBookTTL = %v, want 2s", cfg.ArbBookTTL)
	}
	if cfg.WSReconnectBaseDelay != 500*time.Millisecond {
		t.Errorf("WSReconnectBaseDelay = %v, want 500ms", cfg.WSReconnectBaseDelay)
	}
	if cfg.WSReconnectMaxDelay != 30*time.Second {
		t.Errorf("WSReconnectMaxDelay = %v, want 30s", cfg.WSReconnectMaxDelay)
	}
	if cfg.WhaleMaxBatch != 10 {
		t.Errorf("WhaleMaxBatch = %v, want 10", cfg.WhaleMaxBatch)
	}
	if cfg.WhaleCacheTTL != 24*time.Hour {
		t.Errorf("WhaleCacheTTL = %v, want 24h", cfg.WhaleCacheTTL)
	}
	if cfg.StorageMode != "console" {
		t.Errorf("StorageMode = %q, want console", cfg.StorageMode)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("ARB_SCAN_INTERVAL", "10s")
	t.Setenv("ARB_PROFIT_THRESHOLD", "0.01")
	t.Setenv("POLY_SIGNATURE_TYPE", "2")
	t.Setenv("WHALE_MIN_TRADE", "5000")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.APIPort != "9090" {
		t.Errorf("APIPort = %q, want 9090", cfg.APIPort)
	}
	if cfg.ArbScanInterval != 10*time.Second {
		t.Errorf("ArbScanInterval = %v, want 10s", cfg.ArbScanInterval)
	}
	if cfg.ArbProfitThreshold != 0.01 {
		t.Errorf("ArbProfitThreshold = %v, want 0.01", cfg.ArbProfitThreshold)
	}
	if cfg.SignatureType != 2 {
		t.Errorf("SignatureType = %v, want 2", cfg.SignatureType)
	}
	if cfg.WhaleMinTradeUSDC != 5000 {
		t.Errorf("WhaleMinTradeUSDC = %v, want 5000", cfg.WhaleMinTradeUSDC)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty_port", func(c *Config) { c.APIPort = "" }},
		{"threshold_too_high", func(c *Config) { c.ArbProfitThreshold = 1.0 }},
		{"negative_threshold", func(c *Config) { c.ArbProfitThreshold = -0.1 }},
		{"zero_safety_factor", func(c *Config) { c.ArbSizeSafetyFactor = 0 }},
		{"bad_signature_type", func(c *Config) { c.SignatureType = 3 }},
		{"bad_winrate", func(c *Config) { c.WhaleMinWinRate = 1.5 }},
		{"bad_storage_mode", func(c *Config) { c.StorageMode = "redis" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestRPCEndpoint(t *testing.T) {
	c := &Config{PolygonRPCURL: "https://rpc.example.com"}
	if got := c.RPCEndpoint(); got != "https://rpc.example.com" {
		t.Errorf("RPCEndpoint() = %q, want explicit URL", got)
	}

	c = &Config{InfuraAPIKey: "abc123"}
	if got := c.RPCEndpoint(); got != "https://polygon-mainnet.infura.io/v3/abc123" {
		t.Errorf("RPCEndpoint() = %q, want infura URL", got)
	}

	c = &Config{}
	if got := c.RPCEndpoint(); got != "https://polygon-rpc.com" {
		t.Errorf("RPCEndpoint() = %q, want public fallback", got)
	}
}
