package types

import "time"

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order time-in-force / market-order styles.
const (
	OrderTypeGTC = "GTC"
	OrderTypeGTD = "GTD"
	OrderTypeFOK = "FOK"
	OrderTypeFAK = "FAK"
)

// OrderStatus values. Transitions are monotonic:
// pending -> open -> (filled | cancelled | failed).
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderFailed    OrderStatus = "failed"
)

// terminal reports whether no further transition is allowed.
func (s OrderStatus) terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// CanTransition reports whether s -> next is a legal status move.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderPending:
		return true
	case OrderOpen:
		return next.terminal()
	default:
		return false
	}
}

// Order is the normalized view of an exchange order.
// Invariant: FilledSize + RemainingSize == OriginalSize.
type Order struct {
	ID              string      `json:"id"`
	TokenID         string      `json:"tokenId"`
	Side            string      `json:"side"`
	Price           float64     `json:"price"`
	OriginalSize    float64     `json:"originalSize"`
	FilledSize      float64     `json:"filledSize"`
	RemainingSize   float64     `json:"remainingSize"`
	Status          OrderStatus `json:"status"`
	AssociateTrades []string    `json:"associateTrades,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Trade is a single fill.
type Trade struct {
	TokenID   string    `json:"tokenId"`
	Outcome   string    `json:"outcome"`
	Side      string    `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionResult records one arbitrage execution attempt end to end.
type ExecutionResult struct {
	OpportunityID  string    `json:"opportunityId"`
	ConditionID    string    `json:"conditionId"`
	MarketSlug     string    `json:"marketSlug"`
	Type           string    `json:"type"` // "long" or "short"
	ExecutedAt     time.Time `json:"executedAt"`
	YesTrade       *Trade    `json:"yesTrade,omitempty"`
	NoTrade        *Trade    `json:"noTrade,omitempty"`
	MergedPairs    float64   `json:"mergedPairs,omitempty"`
	SplitAmount    float64   `json:"splitAmount,omitempty"`
	GasCostUSD     float64   `json:"gasCostUsd"`
	RealizedProfit float64   `json:"realizedProfit"`
	Success        bool      `json:"success"`
	FailureKind    ErrorKind `json:"failureKind,omitempty"`
	Error          string    `json:"error,omitempty"`
}
