package types

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Activity event types as reported by the Data API.
const (
	ActivityTrade      = "TRADE"
	ActivitySplit      = "SPLIT"
	ActivityMerge      = "MERGE"
	ActivityRedeem     = "REDEEM"
	ActivityConversion = "CONVERSION"
	ActivityYield      = "YIELD"
)

// ActivityEvent is a normalized wallet activity record. Parsing is lenient in
// field naming (the upstream mixes camelCase and snake_case) but strict in
// types after normalization.
type ActivityEvent struct {
	Type            string  `json:"type"`
	Side            string  `json:"side,omitempty"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	UsdcSize        float64 `json:"usdcSize"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Outcome         string  `json:"outcome,omitempty"`
	Title           string  `json:"title,omitempty"`
	Slug            string  `json:"slug,omitempty"`
	Timestamp       int64   `json:"timestamp"`
	TransactionHash string  `json:"transactionHash"`
	ProxyWallet     string  `json:"proxyWallet,omitempty"`
}

// UnmarshalJSON accepts both camelCase and snake_case variants of the
// ambiguous fields.
func (e *ActivityEvent) UnmarshalJSON(data []byte) error {
	type alias ActivityEvent
	aux := struct {
		alias
		UsdcSizeSnake float64 `json:"usdc_size"`
		TxHashSnake   string  `json:"transaction_hash"`
		CondSnake     string  `json:"condition_id"`
		ProxySnake    string  `json:"proxy_wallet"`
	}{alias: alias(*e)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = ActivityEvent(aux.alias)

	if e.UsdcSize == 0 && aux.UsdcSizeSnake != 0 {
		e.UsdcSize = aux.UsdcSizeSnake
	}
	if e.TransactionHash == "" && aux.TxHashSnake != "" {
		e.TransactionHash = aux.TxHashSnake
	}
	if e.ConditionID == "" && aux.CondSnake != "" {
		e.ConditionID = aux.CondSnake
	}
	if e.ProxyWallet == "" && aux.ProxySnake != "" {
		e.ProxyWallet = aux.ProxySnake
	}
	e.Type = strings.ToUpper(e.Type)
	e.Side = strings.ToUpper(e.Side)

	return nil
}

// Fingerprint returns the dedupe key for the event: the transaction hash when
// present, otherwise a synthetic fingerprint that is deterministic over the
// event fields so reprocessing the same row yields the same key.
func (e *ActivityEvent) Fingerprint() string {
	if e.TransactionHash != "" {
		return e.TransactionHash
	}
	return fmt.Sprintf("synthetic:%d:%s:%s:%s:%g:%g",
		e.Timestamp, e.ConditionID, e.Asset, e.Side, e.Size, e.Price)
}

// Time returns the event timestamp as time.Time (upstream uses unix seconds).
func (e *ActivityEvent) Time() time.Time { return time.Unix(e.Timestamp, 0) }

// LeaderboardEntry is one row of the volume/profit leaderboard.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	ProxyWallet string  `json:"proxyWallet"`
	Name        string  `json:"name,omitempty"`
	Amount      float64 `json:"amount"`
}

// Position is one wallet position row from the Data API.
type Position struct {
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	InitialValue float64 `json:"initialValue"`
	CurrentValue float64 `json:"currentValue"`
	CashPnL      float64 `json:"cashPnl"`
	PercentPnL   float64 `json:"percentPnl"`
	CurPrice     float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
	NegRisk      bool    `json:"negativeRisk"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
}
