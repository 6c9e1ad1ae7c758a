// Package whale discovers consistently profitable wallets from the public
// trade stream. Large trades feed an observation stage; wallets that keep
// showing up get their full history analyzed in batches, and wallets that
// clear the performance thresholds are promoted to a watched index with
// per-window metrics kept in a TTL cache.
package whale

import (
	"time"
)

// Window is one lookback horizon for wallet metrics.
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"
	WindowAll Window = "all"
)

// Windows lists the horizons in ascending order.
//
//nolint:gochecknoglobals // static table
var Windows = []Window{Window24h, Window7d, Window30d, WindowAll}

// Duration returns the window's lookback span. The all window returns 0,
// meaning unbounded.
func (w Window) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window7d:
		return 7 * 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// WindowMetrics is a wallet's performance over one window.
type WindowMetrics struct {
	PnL        float64 `json:"pnl"`
	Volume     float64 `json:"volume"`
	TradeCount int     `json:"tradeCount"`
	WinRate    float64 `json:"winRate"`
	SmartScore float64 `json:"smartScore"`
}

// CacheEntry is one wallet's cached metrics. A nil window means the capped
// history fetch did not reach that window's boundary, so the metric is
// unknown rather than zero.
type CacheEntry struct {
	Address   string                    `json:"address"`
	UpdatedAt time.Time                 `json:"updatedAt"`
	Windows   map[Window]*WindowMetrics `json:"windows"`
}

// Expired reports whether the entry is older than ttl.
func (e *CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.UpdatedAt) > ttl
}

// empty reports whether every window is either nil or all-zero, i.e. the
// refresh fetched nothing usable.
func (e *CacheEntry) empty() bool {
	for _, m := range e.Windows {
		if m != nil && (m.TradeCount > 0 || m.Volume != 0 || m.PnL != 0) {
			return false
		}
	}
	return true
}

// Observation is the pre-promotion stage: how often and how large a wallet
// has traded since we first saw it.
type Observation struct {
	Address        string    `json:"address"`
	TradesObserved int       `json:"tradesObserved"`
	VolumeObserved float64   `json:"volumeObserved"`
	FirstSeen      time.Time `json:"firstSeen"`
	LastSeen       time.Time `json:"lastSeen"`
}

// Record is a promoted whale in the watched index.
type Record struct {
	Address    string    `json:"address"`
	PnL        float64   `json:"pnl"`
	Volume     float64   `json:"volume"`
	TradeCount int       `json:"tradeCount"`
	WinRate    float64   `json:"winRate"`
	SmartScore float64   `json:"smartScore"`
	PromotedAt time.Time `json:"promotedAt"`
}

// ObservedTrade is one qualifying trade kept for the recent-trades view.
type ObservedTrade struct {
	Address         string    `json:"address"`
	ConditionID     string    `json:"conditionId"`
	Title           string    `json:"title,omitempty"`
	Side            string    `json:"side"`
	Size            float64   `json:"size"`
	Price           float64   `json:"price"`
	UsdcSize        float64   `json:"usdcSize"`
	TransactionHash string    `json:"transactionHash"`
	Timestamp       time.Time `json:"timestamp"`
}

// Config holds discovery thresholds and scheduling.
type Config struct {
	MinTradeUSD       float64 // observation gate per trade
	MinTradesObserved int     // observations before analysis
	MinPnL            float64 // promotion thresholds, all-window
	MinWinRate        float64
	MinVolume         float64
	AnalysisInterval  time.Duration // batch cadence
	FeedInterval      time.Duration // global trade-stream poll cadence
	MaxBatch          int           // addresses analyzed per batch
	MaxActivityRows   int           // history fetch cap per wallet
	CacheTTL          time.Duration
	CachePause        time.Duration // gap between serialized cache updates
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinTradeUSD <= 0 {
		c.MinTradeUSD = 500
	}
	if c.MinTradesObserved <= 0 {
		c.MinTradesObserved = 3
	}
	if c.MinWinRate <= 0 {
		c.MinWinRate = 0.55
	}
	if c.MinVolume <= 0 {
		c.MinVolume = 10000
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = 20 * time.Second
	}
	if c.FeedInterval <= 0 {
		c.FeedInterval = 10 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 10
	}
	if c.MaxActivityRows <= 0 {
		c.MaxActivityRows = 500
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.CachePause <= 0 {
		c.CachePause = 1500 * time.Millisecond
	}
}
