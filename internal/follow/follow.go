// Package follow turns another trader's activity stream into guarded trade
// suggestions and, optionally, executed orders. A runner polls the target
// wallet's activity, filters and scales each new event into a suggestion,
// and the auto-trader consumes suggestions in queue or auto mode with copy
// or sweep execution styles, including a paper mode that fills against
// cached book levels.
package follow

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Suggestion statuses.
const (
	SuggestionPending  = "pending"
	SuggestionExecuted = "executed"
	SuggestionDropped  = "dropped"
	SuggestionFailed   = "failed"
)

// Drop reasons recorded on filtered-out events.
const (
	DropTypeFiltered    = "typeFiltered"
	DropKeywordExcluded = "keywordExcluded"
	DropKeywordMissing  = "keywordMissing"
	DropBelowMinimum    = "belowMinimum"
	DropQuotaExceeded   = "quotaExceeded"
)

// Suggestion is one scaled, filtered follow candidate. The ID is
// deterministic over (runnerID, event fingerprint) so reprocessing the same
// activity row can never double-create.
type Suggestion struct {
	ID            string              `json:"id"`
	RunnerID      string              `json:"runnerId"`
	Event         types.ActivityEvent `json:"event"`
	SuggestedUSDC float64             `json:"suggestedUsdc"`
	Status        string              `json:"status"`
	DropReason    string              `json:"dropReason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// SuggestionID derives the deterministic suggestion ID.
func SuggestionID(runnerID, fingerprint string) string {
	sum := sha256.Sum256([]byte(runnerID + ":" + fingerprint))
	return hex.EncodeToString(sum[:16])
}

// RunnerConfig holds the follow-runner tuning for one target wallet.
type RunnerConfig struct {
	TargetAddress   string
	PollInterval    time.Duration // min 500ms
	FetchLimit      int
	Types           []string // allowed event types, default TRADE
	Sides           []string // allowed sides, default BUY and SELL
	IncludeKeywords []string // title/slug allowlist, empty allows all
	ExcludeKeywords []string // title/slug denylist
	Ratio           float64  // scale of the source trade, in (0,1]
	MaxUsdcPerOrder float64
	MaxUsdcPerDay   float64
	MinUsdcPerOrder float64
	RingSize        int
}

// ApplyDefaults fills unset fields and clamps the poll floor.
func (c *RunnerConfig) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollInterval < 500*time.Millisecond {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = 100
	}
	if len(c.Types) == 0 {
		c.Types = []string{types.ActivityTrade}
	}
	if len(c.Sides) == 0 {
		c.Sides = []string{types.SideBuy, types.SideSell}
	}
	if c.Ratio <= 0 || c.Ratio > 1 {
		c.Ratio = 0.1
	}
	if c.MaxUsdcPerOrder <= 0 {
		c.MaxUsdcPerOrder = 100
	}
	if c.MaxUsdcPerDay <= 0 {
		c.MaxUsdcPerDay = 1000
	}
	if c.RingSize <= 0 {
		c.RingSize = 1000
	}
}

// RunnerStatus is the runner's public state snapshot.
type RunnerStatus struct {
	RunnerID        string    `json:"runnerId"`
	TargetAddress   string    `json:"targetAddress"`
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	LastSeenTxHash  string    `json:"lastSeenTransactionHash,omitempty"`
	EventsSeen      int       `json:"eventsSeen"`
	SuggestionsMade int       `json:"suggestionsMade"`
	QuotaUsedUSDC   float64   `json:"quotaUsedUsdc"`
}
