// Package ratelimit provides per-API-class request pacing: each class gets a
// concurrency semaphore plus a minimum inter-start interval, with callers
// dispatched in arrival order.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Class identifies an upstream API family with its own budget.
type Class string

const (
	ClassCLOB    Class = "clob"
	ClassGamma   Class = "gamma"
	ClassData    Class = "data"
	ClassOnchain Class = "onchain"
)

// ClassConfig sets the budget for one class.
type ClassConfig struct {
	MaxConcurrent int
	MinTime       time.Duration
}

// DefaultClassConfigs returns the per-class budgets used when none are
// configured explicitly. CLOB is the tightest upstream, the Gamma and Data
// APIs tolerate more, on-chain calls are paced by the RPC provider.
func DefaultClassConfigs() map[Class]ClassConfig {
	return map[Class]ClassConfig{
		ClassCLOB:    {MaxConcurrent: 4, MinTime: 100 * time.Millisecond},
		ClassGamma:   {MaxConcurrent: 8, MinTime: 50 * time.Millisecond},
		ClassData:    {MaxConcurrent: 8, MinTime: 50 * time.Millisecond},
		ClassOnchain: {MaxConcurrent: 2, MinTime: 200 * time.Millisecond},
	}
}

// Limiter paces calls across API classes.
type Limiter struct {
	logger  *zap.Logger
	classes map[Class]*classLimiter
}

type classLimiter struct {
	sem     chan struct{}
	minTime time.Duration

	mu     sync.Mutex
	nextAt time.Time
	// widenUntil > now means 429 pressure widened the effective minTime.
	widenUntil  time.Time
	widenFactor float64
}

// Config holds Limiter construction parameters.
type Config struct {
	Logger  *zap.Logger
	Classes map[Class]ClassConfig
}

// New creates a Limiter. Unconfigured classes fall back to defaults.
func New(cfg Config) *Limiter {
	classes := cfg.Classes
	if classes == nil {
		classes = DefaultClassConfigs()
	}

	l := &Limiter{
		logger:  cfg.Logger,
		classes: make(map[Class]*classLimiter, len(classes)),
	}
	for class, cc := range classes {
		if cc.MaxConcurrent <= 0 {
			cc.MaxConcurrent = 1
		}
		l.classes[class] = &classLimiter{
			sem:         make(chan struct{}, cc.MaxConcurrent),
			minTime:     cc.MinTime,
			widenFactor: 1.0,
		}
	}
	return l
}

// Execute acquires a slot for the class, waits out the inter-start spacing,
// runs fn and releases the slot. An error from fn releases the slot and is
// returned unchanged. Cancellation before acquisition gives the slot back.
func (l *Limiter) Execute(ctx context.Context, class Class, fn func(ctx context.Context) error) error {
	cl, ok := l.classes[class]
	if !ok {
		return fmt.Errorf("unknown rate limit class %q", class)
	}

	start := time.Now()

	// Reserve a start slot first so spacing is assigned in arrival order,
	// then wait it out; only then contend for a concurrency slot.
	wait := cl.reserve()
	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			RequestsCancelledTotal.WithLabelValues(string(class)).Inc()
			return ctx.Err()
		}
	}

	select {
	case cl.sem <- struct{}{}:
	case <-ctx.Done():
		RequestsCancelledTotal.WithLabelValues(string(class)).Inc()
		return ctx.Err()
	}
	defer func() { <-cl.sem }()

	WaitDurationSeconds.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())
	RequestsTotal.WithLabelValues(string(class)).Inc()

	return fn(ctx)
}

// Widen temporarily multiplies the class's minTime, used when a caller sees
// sustained 429 responses on the class's budget.
func (l *Limiter) Widen(class Class, factor float64, d time.Duration) {
	cl, ok := l.classes[class]
	if !ok || factor <= 1.0 {
		return
	}
	cl.mu.Lock()
	cl.widenFactor = factor
	cl.widenUntil = time.Now().Add(d)
	cl.mu.Unlock()

	WidenEventsTotal.WithLabelValues(string(class)).Inc()
	if l.logger != nil {
		l.logger.Warn("rate-limit-widened",
			zap.String("class", string(class)),
			zap.Float64("factor", factor),
			zap.Duration("duration", d))
	}
}

func (cl *classLimiter) reserve() time.Duration {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	spacing := cl.minTime
	now := time.Now()
	if now.Before(cl.widenUntil) {
		spacing = time.Duration(float64(spacing) * cl.widenFactor)
	}

	if cl.nextAt.Before(now) {
		cl.nextAt = now
	}
	wait := cl.nextAt.Sub(now)
	cl.nextAt = cl.nextAt.Add(spacing)
	return wait
}
