package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted refuses resubmission of a settled donation. The
	// gateway is never contacted once a record carries it.
	ErrAlreadyCompleted = errors.New("donation already completed")

	// ErrRateLimitExceeded is recoverable; the donor waits out the window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// ValidationError is a local, recoverable input problem shown inline against
// a field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError builds a field-scoped validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// GatewayCategory classifies a payment gateway failure into an actionable
// outcome for the donor.
type GatewayCategory string

const (
	// GatewayConnection covers transport failures and timeouts; the donor may
	// simply retry.
	GatewayConnection GatewayCategory = "connection"
	// GatewayCard means the card was declined; the donor needs another card.
	GatewayCard GatewayCategory = "card"
	// GatewayInvalidRequest means we sent something the gateway rejects;
	// surfaced as a generic failure and logged for operators.
	GatewayInvalidRequest GatewayCategory = "invalid_request"
	// GatewayGeneric is everything else the gateway reports.
	GatewayGeneric GatewayCategory = "generic"
)

// GatewayError wraps a gateway failure with its category. Settlement maps
// every adapter error into one of these; none propagate raw.
type GatewayError struct {
	Category GatewayCategory
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("gateway %s: %v", e.Category, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Recoverable reports whether the donor can act on the failure themselves
// (retry, or retry with another card).
func (e *GatewayError) Recoverable() bool {
	return e.Category == GatewayConnection || e.Category == GatewayCard
}

// GatewayCategoryOf extracts the category from err, or "" when err is not a
// gateway error.
func GatewayCategoryOf(err error) GatewayCategory {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Category
	}
	return ""
}
