package agentpost_errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound           = errors.New("not found")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrAgentExists        = errors.New("agent already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrServiceUnavailable = errors.New("service unavailable")

	// Payment verification
	ErrWrongAsset         = errors.New("wrong payment asset")
	ErrInsufficientAmount = errors.New("payment amount below minimum")
	ErrWrongRecipient     = errors.New("payment sent to wrong recipient")
	ErrSettlementFailed   = errors.New("settlement failed")
	ErrNoPayerIdentified  = errors.New("settlement succeeded without a payer identity")
	ErrDuplicatePayment   = errors.New("transaction already redeemed")

	// Recovery verification
	ErrTxNotFound            = errors.New("transaction not found")
	ErrTxNotConfirmed        = errors.New("transaction not yet confirmed")
	ErrNotASupportedTransfer = errors.New("transaction is not a supported asset transfer")

	// Free write paths
	ErrReplyExists      = errors.New("message already has a reply")
	ErrInvalidSignature = errors.New("invalid signature proof")
)

// RateLimitedError is returned when a sliding window is exhausted. It carries
// the interval after which the caller may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// ValidationError collects per-field reasons for a malformed request. It is
// returned before any payment or store call is attempted.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields[field] = reason
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+": "+reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
