// Package storage persists detected opportunities and execution results,
// plus a small atomic JSON file store used by components with file-backed
// state.
package storage

import (
	"context"

	"github.com/dmarch/polymarket-trader/internal/arbitrage"
	"github.com/dmarch/polymarket-trader/pkg/types"
)

// Storage persists arbitrage activity. Implementations: postgres, console.
type Storage interface {
	// StoreOpportunity records a detected opportunity.
	StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error

	// StoreExecution records one execution attempt, successful or not.
	StoreExecution(ctx context.Context, result *types.ExecutionResult) error

	// Close releases the backing connection.
	Close() error
}
