package types

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// PriceLevel is a single raw price level as delivered by the CLOB API
// (decimal strings).
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Float parses the level into numeric price and size.
func (l PriceLevel) Float() (price, size float64, err error) {
	price, err = strconv.ParseFloat(l.Price, 64)
	if err != nil {
		return 0, 0, err
	}
	size, err = strconv.ParseFloat(l.Size, 64)
	if err != nil {
		return 0, 0, err
	}
	return price, size, nil
}

// RawOrderbook is the unprocessed depth returned by GET /book.
type RawOrderbook struct {
	Market    string       `json:"market"`
	AssetID   string       `json:"asset_id"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Hash      string       `json:"hash,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// BookLevel is a normalized depth level. Prices are decimal probabilities in
// (0,1]; CumUSD is the running price*size sum from the top of the side.
type BookLevel struct {
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	CumUSD float64 `json:"cumUsd"`
}

// BookSnapshot is the normalized orderbook for one outcome token.
// Bids descend, asks ascend. A snapshot older than the configured TTL must
// never be used for execution.
type BookSnapshot struct {
	ConditionID string      `json:"conditionId"`
	AssetID     string      `json:"assetId"`
	Outcome     string      `json:"outcome"`
	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	Sequence    int64       `json:"sequence"`
	FetchedAt   time.Time   `json:"fetchedAt"`
}

// BestBid returns the top bid, or nil when the side is empty.
func (s *BookSnapshot) BestBid() *BookLevel {
	if len(s.Bids) == 0 {
		return nil
	}
	return &s.Bids[0]
}

// BestAsk returns the top ask, or nil when the side is empty.
func (s *BookSnapshot) BestAsk() *BookLevel {
	if len(s.Asks) == 0 {
		return nil
	}
	return &s.Asks[0]
}

// Spread returns bestAsk-bestBid, or 0 when either side is empty.
func (s *BookSnapshot) Spread() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid == nil || ask == nil {
		return 0
	}
	return ask.Price - bid.Price
}

// Stale reports whether the snapshot is older than ttl at the given instant.
func (s *BookSnapshot) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.FetchedAt) > ttl
}

// Market-channel WebSocket event types.
const (
	EventBook           = "book"
	EventPriceChange    = "price_change"
	EventTickSizeChange = "tick_size_change"
	EventLastTradePrice = "last_trade_price"
)

// MarketMessage is one demultiplexed message from the CLOB market channel.
// The exchange sends arrays of these; Timestamp arrives as a string.
type MarketMessage struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Timestamp int64        `json:"-"`
	Hash      string       `json:"hash,omitempty"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`

	// price_change payload
	PriceChanges []PriceChange `json:"price_changes,omitempty"`

	// tick_size_change payload
	OldTickSize string `json:"old_tick_size,omitempty"`
	NewTickSize string `json:"new_tick_size,omitempty"`

	// last_trade_price payload
	Price string `json:"price,omitempty"`
	Side  string `json:"side,omitempty"`
	Size  string `json:"size,omitempty"`
}

// PriceChange is a single asset entry inside a price_change message.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	Hash    string `json:"hash,omitempty"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// UnmarshalJSON handles the string-encoded timestamp.
func (m *MarketMessage) UnmarshalJSON(data []byte) error {
	type alias MarketMessage
	aux := struct {
		TimestampStr string `json:"timestamp"`
		alias
	}{alias: alias(*m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = MarketMessage(aux.alias)

	if aux.TimestampStr != "" {
		ts, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		m.Timestamp = ts
	}

	return nil
}
