package clob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Creds returns the L2 credential triple, deriving it from the L1 key on
// first use. The exchange answers the derive endpoint with 400 when the
// account has never created credentials; creation is the fallback. The
// result is cached for the process lifetime.
func (c *Client) Creds(ctx context.Context) (*types.APICreds, error) {
	c.credsMu.Lock()
	defer c.credsMu.Unlock()

	if c.creds != nil {
		return c.creds, nil
	}

	headers, err := c.signer.l1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	creds, err := c.fetchCreds(ctx, "GET", "/auth/derive-api-key", headers)
	if err != nil {
		var apiErr *types.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
			return nil, fmt.Errorf("derive api key: %w", err)
		}
		// No credentials exist for this key yet.
		creds, err = c.fetchCreds(ctx, "POST", "/auth/api-key", headers)
		if err != nil {
			return nil, fmt.Errorf("create api key: %w", err)
		}
		c.logger.Info("api-creds-created", zap.String("api_key", creds.Key))
	} else {
		c.logger.Info("api-creds-derived", zap.String("api_key", creds.Key))
	}

	if creds.Key == "" || creds.Secret == "" || creds.Passphrase == "" {
		return nil, types.E(types.KindValidation, "clob.Creds", "incomplete credential triple in response")
	}

	CredsBootstrapsTotal.Inc()
	c.creds = creds
	return c.creds, nil
}

func (c *Client) fetchCreds(ctx context.Context, method, path string, headers map[string]string) (*types.APICreds, error) {
	var creds types.APICreds
	err := c.limiter.Execute(ctx, ratelimit.ClassCLOB, func(ctx context.Context) error {
		start := time.Now()
		resp, rerr := c.http.R().SetContext(ctx).SetHeaders(headers).Execute(method, path)
		RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		if rerr != nil {
			RequestsTotal.WithLabelValues(method, "transport_error").Inc()
			return fmt.Errorf("%s %s: %w", method, path, rerr)
		}
		if resp.IsError() {
			RequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode())).Inc()
			return apiError(resp.StatusCode(), resp.Body())
		}
		RequestsTotal.WithLabelValues(method, "ok").Inc()
		return json.Unmarshal(resp.Body(), &creds)
	})
	if err != nil {
		return nil, err
	}
	return &creds, nil
}
