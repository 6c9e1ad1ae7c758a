package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/internal/clob"
	"github.com/dmarch/polymarket-trader/internal/settlement"
	"github.com/dmarch/polymarket-trader/pkg/config"
	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
)

// cmdEnv bundles what the one-shot wallet commands need.
type cmdEnv struct {
	cfg     *config.Config
	logger  *zap.Logger
	limiter *ratelimit.Limiter
}

func loadCmdEnv() (*cmdEnv, error) {
	// Missing .env is fine; plain environment variables also work.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("POLY_PRIVKEY is not set")
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	return &cmdEnv{
		cfg:    cfg,
		logger: logger,
		limiter: ratelimit.New(ratelimit.Config{
			Logger:  logger,
			Classes: ratelimit.DefaultClassConfigs(),
		}),
	}, nil
}

func (e *cmdEnv) settlementClient() (*settlement.Client, error) {
	return settlement.New(settlement.Config{
		RPCURL:        e.cfg.RPCEndpoint(),
		PrivateKey:    e.cfg.PrivateKey,
		FunderAddress: e.cfg.ProxyAddress,
		ChainID:       e.cfg.ChainID,
		Limiter:       e.limiter,
		Logger:        e.logger,
	})
}

func (e *cmdEnv) clobClient() (*clob.Client, error) {
	return clob.New(clob.Config{
		BaseURL:       e.cfg.CLOBBaseURL,
		PrivateKey:    e.cfg.PrivateKey,
		FunderAddress: e.cfg.ProxyAddress,
		SignatureType: e.cfg.SignatureType,
		ChainID:       e.cfg.ChainID,
		Limiter:       e.limiter,
		Logger:        e.logger,
	})
}
