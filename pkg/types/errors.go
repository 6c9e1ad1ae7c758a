package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for retry and reporting decisions.
type ErrorKind string

const (
	KindTransientNetwork    ErrorKind = "transient_network"
	KindRateLimited         ErrorKind = "rate_limited"
	KindValidation          ErrorKind = "validation"
	KindOnChainRevert       ErrorKind = "onchain_revert"
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindStaleBook           ErrorKind = "stale_book"
	KindImbalanced          ErrorKind = "imbalanced"
)

// DomainError is a structured error surfaced at component boundaries.
// Remedy, when set, is a concrete remediation the caller can act on
// (approve collateral, top up gas, convert bridged USDC).
type DomainError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Remedy  string
	Err     error
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// E builds a DomainError.
func E(kind ErrorKind, op, message string) *DomainError {
	return &DomainError{Kind: kind, Op: op, Message: message}
}

// WithRemedy attaches a remediation hint.
func (e *DomainError) WithRemedy(remedy string) *DomainError {
	e.Remedy = remedy
	return e
}

// WithCause attaches an underlying error.
func (e *DomainError) WithCause(err error) *DomainError {
	e.Err = err
	return e
}

// IsKind reports whether err (or anything it wraps) is a DomainError of the
// given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// APIError is a non-2xx response from an exchange REST endpoint.
type APIError struct {
	Code   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Body)
}

// Retryable reports whether the response status warrants a retry.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// Known CLOB API error codes.
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
)
