package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel   string
	APIHost    string
	APIPort    string
	CORSOrigin string
	StateDir   string

	// Exchange endpoints
	CLOBBaseURL  string
	GammaBaseURL string
	DataBaseURL  string
	WSURL        string

	// Wallet / signing
	PrivateKey    string
	ProxyAddress  string
	SignatureType int // 0=EOA, 1=email/social proxy, 2=browser proxy; verbatim per exchange

	// On-chain
	PolygonRPCURL string
	InfuraAPIKey  string
	ChainID       int64

	// WebSocket
	WSDialTimeout        time.Duration
	WSPingInterval       time.Duration
	WSReconnectBaseDelay time.Duration
	WSReconnectMaxDelay  time.Duration
	WSMessageBufferSize  int

	// Arbitrage
	ArbProfitThreshold      float64
	ArbScanInterval         time.Duration
	ArbMinVolume            float64
	ArbMaxMarkets           int
	ArbMinTradeSize         float64
	ArbMaxTradeSize         float64
	ArbSizeSafetyFactor     float64
	ArbBookTTL              time.Duration
	ArbRebalanceCooldown    time.Duration
	ArbMaxConsecRebalances  int
	ArbRebalanceTargetRatio float64
	ArbRebalanceTolerance   float64

	// Whale discovery
	WhaleMinTradeUSDC     float64
	WhaleMinTrades        int
	WhaleMinWinRate       float64
	WhaleMinPnL           float64
	WhaleMinVolume        float64
	WhaleAnalysisInterval time.Duration
	WhaleMaxBatch         int
	WhaleCacheTTL         time.Duration

	// Storage (execution / opportunity records)
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:   getEnvOrDefault("LOG_LEVEL", "info"),
		APIHost:    getEnvOrDefault("API_HOST", "0.0.0.0"),
		APIPort:    getEnvOrDefault("API_PORT", "8080"),
		CORSOrigin: getEnvOrDefault("CORS_ORIGIN", "*"),
		StateDir:   getEnvOrDefault("POLY_STATE_DIR", defaultStateDir()),

		CLOBBaseURL:  getEnvOrDefault("POLY_CLOB_URL", "https://clob.polymarket.com"),
		GammaBaseURL: getEnvOrDefault("POLY_GAMMA_URL", "https://gamma-api.polymarket.com"),
		DataBaseURL:  getEnvOrDefault("POLY_DATA_URL", "https://data-api.polymarket.com"),
		WSURL:        getEnvOrDefault("POLY_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),

		PrivateKey:    os.Getenv("POLY_PRIVKEY"),
		ProxyAddress:  os.Getenv("POLY_PROXY_ADDRESS"),
		SignatureType: getIntOrDefault("POLY_SIGNATURE_TYPE", 0),

		PolygonRPCURL: getEnvOrDefault("POLYGON_RPC_URL", ""),
		InfuraAPIKey:  os.Getenv("INFURA_API_KEY"),
		ChainID:       137,

		WSDialTimeout:        getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPingInterval:       getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectBaseDelay: getDurationOrDefault("WS_RECONNECT_BASE_DELAY", 500*time.Millisecond),
		WSReconnectMaxDelay:  getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSMessageBufferSize:  getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 1000),

		ArbProfitThreshold:      getFloat64OrDefault("ARB_PROFIT_THRESHOLD", 0.005),
		ArbScanInterval:         getDurationOrDefault("ARB_SCAN_INTERVAL", 30*time.Second),
		ArbMinVolume:            getFloat64OrDefault("ARB_MIN_VOLUME", 100.0),
		ArbMaxMarkets:           getIntOrDefault("ARB_MAX_MARKETS", 500),
		ArbMinTradeSize:         getFloat64OrDefault("ARB_MIN_TRADE_SIZE", 5.0),
		ArbMaxTradeSize:         getFloat64OrDefault("ARB_MAX_TRADE_SIZE", 1000.0),
		ArbSizeSafetyFactor:     getFloat64OrDefault("ARB_SIZE_SAFETY_FACTOR", 0.8),
		ArbBookTTL:              getDurationOrDefault("ARB_BOOK_TTL", 2*time.Second),
		ArbRebalanceCooldown:    getDurationOrDefault("ARB_REBALANCE_COOLDOWN", 60*time.Second),
		ArbMaxConsecRebalances:  getIntOrDefault("ARB_MAX_CONSECUTIVE_REBALANCES", 3),
		ArbRebalanceTargetRatio: getFloat64OrDefault("ARB_REBALANCE_TARGET_RATIO", 0.5),
		ArbRebalanceTolerance:   getFloat64OrDefault("ARB_REBALANCE_TOLERANCE", 0.15),

		WhaleMinTradeUSDC:     getFloat64OrDefault("WHALE_MIN_TRADE", 1000.0),
		WhaleMinTrades:        getIntOrDefault("WHALE_MIN_TRADES", 3),
		WhaleMinWinRate:       getFloat64OrDefault("WHALE_MIN_WINRATE", 0.55),
		WhaleMinPnL:           getFloat64OrDefault("WHALE_MIN_PNL", 10000.0),
		WhaleMinVolume:        getFloat64OrDefault("WHALE_MIN_VOLUME", 100000.0),
		WhaleAnalysisInterval: getDurationOrDefault("WHALE_ANALYSIS_INTERVAL", 20*time.Second),
		WhaleMaxBatch:         getIntOrDefault("WHALE_MAX_BATCH", 10),
		WhaleCacheTTL:         getDurationOrDefault("WHALE_CACHE_TTL", 24*time.Hour),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "polytrader"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", ""),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "polytrader"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.APIPort == "" {
		return fmt.Errorf("API_PORT cannot be empty")
	}

	if c.WSURL == "" {
		return fmt.Errorf("POLY_WS_URL cannot be empty")
	}

	if c.ArbProfitThreshold < 0 || c.ArbProfitThreshold >= 1.0 {
		return fmt.Errorf("ARB_PROFIT_THRESHOLD must be in [0, 1.0), got %f", c.ArbProfitThreshold)
	}

	if c.ArbSizeSafetyFactor <= 0 || c.ArbSizeSafetyFactor > 1.0 {
		return fmt.Errorf("ARB_SIZE_SAFETY_FACTOR must be in (0, 1.0], got %f", c.ArbSizeSafetyFactor)
	}

	if c.SignatureType < 0 || c.SignatureType > 2 {
		return fmt.Errorf("POLY_SIGNATURE_TYPE must be 0, 1 or 2, got %d", c.SignatureType)
	}

	if c.WhaleMinWinRate < 0 || c.WhaleMinWinRate > 1.0 {
		return fmt.Errorf("WHALE_MIN_WINRATE must be in [0, 1.0], got %f", c.WhaleMinWinRate)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres' or 'console', got %q", c.StorageMode)
	}

	return nil
}

// RPCEndpoint returns the Polygon RPC URL, falling back to Infura when only
// an API key is configured.
func (c *Config) RPCEndpoint() string {
	if c.PolygonRPCURL != "" {
		return c.PolygonRPCURL
	}
	if c.InfuraAPIKey != "" {
		return "https://polygon-mainnet.infura.io/v3/" + c.InfuraAPIKey
	}
	return "https://polygon-rpc.com"
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".polytrader"
	}
	return home + "/.polytrader"
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
