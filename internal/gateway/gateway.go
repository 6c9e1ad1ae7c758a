// Package gateway wraps the exchange REST surfaces (Gamma, CLOB, Data API)
// in typed operations. Every call runs under a rate-limiter class and a
// jittered retry policy; sustained 429 pressure widens the class's pacing.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/retry"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const (
	// MaxPageSize is the largest page the exchange serves per request.
	MaxPageSize = 100

	userAgent = "polymarket-trader/1.0"
)

// Gateway is the typed REST client for the exchange's read APIs.
type Gateway struct {
	gamma   *resty.Client
	clob    *resty.Client
	data    *resty.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	retry   retry.Policy

	press429 map[ratelimit.Class]*pressureWindow
}

// Config holds gateway construction parameters.
type Config struct {
	GammaBaseURL string
	CLOBBaseURL  string
	DataBaseURL  string
	Limiter      *ratelimit.Limiter
	Logger       *zap.Logger
	Timeout      time.Duration
	RetryPolicy  *retry.Policy
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	newClient := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", userAgent)
	}

	policy := retry.DefaultPolicy()
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}
	policy.Retryable = retryableAPIError

	return &Gateway{
		gamma:   newClient(cfg.GammaBaseURL),
		clob:    newClient(cfg.CLOBBaseURL),
		data:    newClient(cfg.DataBaseURL),
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		retry:   policy,
		press429: map[ratelimit.Class]*pressureWindow{
			ratelimit.ClassCLOB:  {},
			ratelimit.ClassGamma: {},
			ratelimit.ClassData:  {},
		},
	}
}

func retryableAPIError(err error) bool {
	if apiErr, ok := err.(*types.APIError); ok {
		return apiErr.Retryable()
	}
	// Transport-level failures (timeouts, resets) are transient.
	return true
}

// pressureWindow counts 429s in a sliding window to decide when to widen the
// bucket's pacing.
type pressureWindow struct {
	mu    sync.Mutex
	times []time.Time
}

const (
	pressureThreshold = 3
	pressureSpan      = 10 * time.Second
	widenFactor       = 2.0
	widenDuration     = 30 * time.Second
)

func (p *pressureWindow) note(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-pressureSpan)
	kept := p.times[:0]
	for _, t := range p.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.times = append(kept, now)
	return len(p.times) >= pressureThreshold
}

// getJSON runs one GET under the class budget and retry policy, decoding a
// 2xx body into out.
func (g *Gateway) getJSON(ctx context.Context, class ratelimit.Class, client *resty.Client, path string, params map[string]string, out interface{}) error {
	return retry.Do(ctx, g.retry, func(ctx context.Context) error {
		return g.limiter.Execute(ctx, class, func(ctx context.Context) error {
			start := time.Now()
			resp, err := client.R().
				SetContext(ctx).
				SetQueryParams(params).
				Get(path)

			RequestDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())

			if err != nil {
				RequestsTotal.WithLabelValues(string(class), "transport_error").Inc()
				return fmt.Errorf("get %s: %w", path, err)
			}

			if resp.IsError() {
				RequestsTotal.WithLabelValues(string(class), fmt.Sprintf("%d", resp.StatusCode())).Inc()
				apiErr := &types.APIError{Status: resp.StatusCode(), Body: string(resp.Body())}

				if resp.StatusCode() == 429 {
					if w, ok := g.press429[class]; ok && w.note(time.Now()) {
						g.limiter.Widen(class, widenFactor, widenDuration)
					}
				}
				return apiErr
			}

			RequestsTotal.WithLabelValues(string(class), "ok").Inc()

			if out == nil {
				return nil
			}
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			return nil
		})
	})
}
