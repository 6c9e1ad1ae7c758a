package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:      time.Millisecond,
		MaxDelay:          10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		JitterPercent:     0.2,
	}
}

func TestReconnect_SucceedsAfterFailures(t *testing.T) {
	rm := NewReconnectManager(testReconnectConfig(), zap.NewNop())

	attempts := 0
	err := rm.Reconnect(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("dial refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestReconnect_ContextCancelStops(t *testing.T) {
	rm := NewReconnectManager(testReconnectConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rm.Reconnect(ctx, func(ctx context.Context) error {
		return errors.New("dial refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Reconnect() error = %v, want context.Canceled", err)
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		JitterPercent:     0, // deterministic
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		if got := rm.nextDelay(); got != w {
			t.Errorf("delay[%d] = %v, want %v", i, got, w)
		}
	}
}

func TestBackoff_ResetRestoresInitial(t *testing.T) {
	cfg := testReconnectConfig()
	cfg.JitterPercent = 0
	rm := NewReconnectManager(cfg, zap.NewNop())

	rm.nextDelay()
	rm.nextDelay()
	rm.Reset()

	if got := rm.nextDelay(); got != cfg.InitialDelay {
		t.Errorf("delay after reset = %v, want %v", got, cfg.InitialDelay)
	}
}

func TestBackoff_JitterStaysInBand(t *testing.T) {
	cfg := ReconnectConfig{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 1.0,
		JitterPercent:     0.2,
	}
	rm := NewReconnectManager(cfg, zap.NewNop())

	for i := 0; i < 50; i++ {
		d := rm.nextDelay()
		if d < cfg.InitialDelay || d > time.Duration(float64(cfg.InitialDelay)*1.2) {
			t.Fatalf("delay %v outside [base, base*1.2]", d)
		}
	}
}
