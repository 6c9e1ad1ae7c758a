package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the exponential backoff parameters.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// ReconnectManager retries a connect function with capped exponential backoff
// and jitter. Reconnection never gives up; only context cancellation stops it.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger

	mu      sync.Mutex
	backoff time.Duration
}

// NewReconnectManager creates a reconnection manager.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		config:  cfg,
		logger:  logger,
		backoff: cfg.InitialDelay,
	}
}

// Reconnect retries connectFunc until it succeeds or ctx is cancelled.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connectFunc func(context.Context) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delay := rm.nextDelay()

		rm.logger.Info("attempting-reconnection", zap.Duration("backoff", delay))
		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		err := connectFunc(ctx)
		if err == nil {
			rm.Reset()
			rm.logger.Info("reconnection-successful")
			return nil
		}

		rm.logger.Warn("reconnection-failed", zap.Error(err))
		ReconnectFailuresTotal.Inc()
	}
}

// Reset restores the backoff to the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	rm.backoff = rm.config.InitialDelay
	rm.mu.Unlock()
}

// nextDelay returns the current backoff with jitter applied and advances the
// backoff for the next attempt.
func (rm *ReconnectManager) nextDelay() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	//nolint:gosec // jitter does not need crypto randomness
	jitter := rand.Float64() * rm.config.JitterPercent
	delay := time.Duration(float64(rm.backoff) * (1.0 + jitter))

	next := time.Duration(float64(rm.backoff) * rm.config.BackoffMultiplier)
	if next > rm.config.MaxDelay {
		next = rm.config.MaxDelay
	}
	rm.backoff = next

	return delay
}
