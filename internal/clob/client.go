// Package clob implements the authenticated trading client for the CLOB:
// signed order placement, cancels, open-order and trade queries, balance
// and allowance checks, and the L1-to-L2 credential bootstrap.
package clob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/polymarket/go-order-utils/pkg/builder"
	"go.uber.org/zap"

	"github.com/dmarch/polymarket-trader/pkg/cache"
	"github.com/dmarch/polymarket-trader/pkg/ratelimit"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Client is the authenticated CLOB trading client.
type Client struct {
	http    *resty.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	signer  *signer
	builder builder.ExchangeOrderBuilder

	meta cache.Cache // per-token tick sizes and neg-risk flags

	credsMu sync.Mutex
	creds   *types.APICreds

	press429 *pressureWindow
}

// Config holds trading-client construction parameters.
type Config struct {
	BaseURL       string
	PrivateKey    string
	FunderAddress string
	SignatureType int // 0=EOA, 1=email/social proxy, 2=browser proxy
	ChainID       int64
	Creds         *types.APICreds // optional preconfigured L2 triple
	Limiter       *ratelimit.Limiter
	Logger        *zap.Logger
	Timeout       time.Duration
}

// New creates a trading client. Credentials are derived lazily on first
// authenticated call unless cfg.Creds is set.
func New(cfg Config) (*Client, error) {
	s, err := newSigner(cfg.PrivateKey, cfg.FunderAddress, cfg.SignatureType, cfg.ChainID)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	meta, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("meta cache: %w", err)
	}

	var creds *types.APICreds
	if cfg.Creds != nil && cfg.Creds.Key != "" && cfg.Creds.Secret != "" {
		creds = cfg.Creds
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json"),
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
		signer:   s,
		builder:  builder.NewExchangeOrderBuilderImpl(s.chainID, nil),
		meta:     meta,
		creds:    creds,
		press429: &pressureWindow{},
	}, nil
}

// Address returns the EOA signing address.
func (c *Client) Address() string { return c.signer.address.Hex() }

// FunderAddress returns the maker/funder wallet address.
func (c *Client) FunderAddress() string { return c.signer.funder.Hex() }

// Close releases the metadata cache.
func (c *Client) Close() { c.meta.Close() }

// pressureWindow mirrors the read gateway's 429 handling: repeated
// rate-limit responses in a short span widen the CLOB class's pacing.
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

// doL2 runs one L2-authenticated request under the CLOB budget. body may be
// nil. A non-2xx response becomes an APIError carrying any recognized
// exchange error code.
func (c *Client) doL2(ctx context.Context, method, path string, params map[string]string, body interface{}, out interface{}) error {
	creds, err := c.Creds(ctx)
	if err != nil {
		return err
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	headers, err := c.signer.l2Headers(creds, method, path, string(bodyBytes))
	if err != nil {
		return fmt.Errorf("l2 headers: %w", err)
	}

	return c.limiter.Execute(ctx, ratelimit.ClassCLOB, func(ctx context.Context) error {
		start := time.Now()
		req := c.http.R().SetContext(ctx).SetHeaders(headers).SetQueryParams(params)
		if bodyBytes != nil {
			req.SetBody(json.RawMessage(bodyBytes))
		}
		resp, err := req.Execute(method, path)
		RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

		if err != nil {
			RequestsTotal.WithLabelValues(method, "transport_error").Inc()
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		if resp.IsError() {
			RequestsTotal.WithLabelValues(method, fmt.Sprintf("%d", resp.StatusCode())).Inc()
			if resp.StatusCode() == 429 && c.press429.note(time.Now()) {
				c.limiter.Widen(ratelimit.ClassCLOB, widenFactor, widenDuration)
			}
			return apiError(resp.StatusCode(), resp.Body())
		}
		RequestsTotal.WithLabelValues(method, "ok").Inc()

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	})
}

// doPublic runs an unauthenticated CLOB read.
func (c *Client) doPublic(ctx context.Context, path string, params map[string]string, out interface{}) error {
	return c.limiter.Execute(ctx, ratelimit.ClassCLOB, func(ctx context.Context) error {
		resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get(path)
		if err != nil {
			return fmt.Errorf("get %s: %w", path, err)
		}
		if resp.IsError() {
			return apiError(resp.StatusCode(), resp.Body())
		}
		return json.Unmarshal(resp.Body(), out)
	})
}

// knownErrorCodes are exchange rejection codes worth classifying: callers
// branch on them for balance top-ups, tick realignment, and FOK fallbacks.
//
//nolint:gochecknoglobals // lookup table
var knownErrorCodes = []string{
	types.ErrInvalidMinTickSize,
	types.ErrNotEnoughBalance,
	types.ErrFOKNotFilled,
	types.ErrMarketNotReady,
}

func apiError(status int, body []byte) *types.APIError {
	apiErr := &types.APIError{Status: status, Body: string(body)}
	for _, code := range knownErrorCodes {
		if strings.Contains(apiErr.Body, code) {
			apiErr.Code = code
			break
		}
	}
	return apiErr
}

// CancelOrder cancels a single order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return types.E(types.KindValidation, "clob.CancelOrder", "empty order id")
	}
	body := map[string]string{"orderID": orderID}
	if err := c.doL2(ctx, "DELETE", "/order", nil, body, nil); err != nil {
		return err
	}
	CancelsTotal.Inc()
	c.logger.Info("order-cancelled", zap.String("order_id", orderID))
	return nil
}

// CancelAllOrders cancels every open order for the account.
func (c *Client) CancelAllOrders(ctx context.Context) error {
	if err := c.doL2(ctx, "DELETE", "/cancel-all", nil, nil, nil); err != nil {
		return err
	}
	CancelsTotal.Inc()
	c.logger.Warn("all-orders-cancelled")
	return nil
}

// GetOpenOrders lists open orders, optionally scoped to one market.
func (c *Client) GetOpenOrders(ctx context.Context, marketID string) ([]types.OrderQueryResponse, error) {
	params := map[string]string{}
	if marketID != "" {
		params["market"] = marketID
	}
	var orders []types.OrderQueryResponse
	if err := c.doL2(ctx, "GET", "/orders", params, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetTrades lists the account's fills, optionally scoped to one market.
func (c *Client) GetTrades(ctx context.Context, marketID string) ([]types.Trade, error) {
	params := map[string]string{}
	if marketID != "" {
		params["market"] = marketID
	}
	var raw []struct {
		AssetID   string  `json:"asset_id"`
		Outcome   string  `json:"outcome"`
		Side      string  `json:"side"`
		Price     float64 `json:"price,string"`
		Size      float64 `json:"size,string"`
		MatchTime string  `json:"match_time"`
	}
	if err := c.doL2(ctx, "GET", "/data/trades", params, nil, &raw); err != nil {
		return nil, err
	}

	trades := make([]types.Trade, 0, len(raw))
	for _, t := range raw {
		ts, _ := time.Parse(time.RFC3339, t.MatchTime)
		trades = append(trades, types.Trade{
			TokenID:   t.AssetID,
			Outcome:   t.Outcome,
			Side:      t.Side,
			Price:     t.Price,
			Size:      t.Size,
			Timestamp: ts,
		})
	}
	return trades, nil
}

// BalanceAllowanceKind selects which asset the balance query refers to.
type BalanceAllowanceKind string

const (
	BalanceCollateral  BalanceAllowanceKind = "COLLATERAL"
	BalanceConditional BalanceAllowanceKind = "CONDITIONAL"
)

// GetBalanceAllowance reads the exchange's view of the account's balance and
// allowance. tokenID is required for the conditional kind.
func (c *Client) GetBalanceAllowance(ctx context.Context, kind BalanceAllowanceKind, tokenID string) (*types.BalanceAllowance, error) {
	if kind == BalanceConditional && tokenID == "" {
		return nil, types.E(types.KindValidation, "clob.GetBalanceAllowance", "conditional balance requires a token id")
	}
	params := map[string]string{
		"asset_type":     string(kind),
		"signature_type": fmt.Sprintf("%d", c.signer.sigType),
	}
	if tokenID != "" {
		params["token_id"] = tokenID
	}

	var out types.BalanceAllowance
	if err := c.doL2(ctx, "GET", "/balance-allowance", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
