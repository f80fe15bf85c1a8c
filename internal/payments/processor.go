// Package payments talks to the payment processor that charges checkouts.
package payments

import (
	"context"
	"fmt"
)

// ChargeRequest describes a single charge in minor currency units.
type ChargeRequest struct {
	AmountMinor    int64
	Currency       string
	CustomerID     string
	IdempotencyKey string
}

// Processor is the contract checkout needs from a payment processor.
// Implementations return *Error for every processor failure.
type Processor interface {
	CreateCustomer(ctx context.Context, email, token string) (string, error)
	AttachSource(ctx context.Context, customerID, token string) error
	Charge(ctx context.Context, req ChargeRequest) (string, error)
}

// Kind classifies a processor failure.
type Kind string

const (
	KindCardDeclined   Kind = "card_declined"
	KindRateLimited    Kind = "rate_limited"
	KindInvalidRequest Kind = "invalid_request"
	KindAuthFailed     Kind = "auth_failed"
	KindNetwork        Kind = "network_error"
	KindIndeterminate  Kind = "indeterminate"
	KindUnknown        Kind = "unknown"
)

// Error is a classified processor failure.
type Error struct {
	Kind Kind
	// Message is safe to show to the shopper.
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("payment %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindNetwork
}

// NewError builds an Error with the default shopper message of kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: DefaultMessage(kind), Err: err}
}

// DefaultMessage returns the shopper facing text for kind.
func DefaultMessage(kind Kind) string {
	switch kind {
	case KindCardDeclined:
		return "Your card was declined."
	case KindRateLimited:
		return "Rate limit error"
	case KindInvalidRequest:
		return "Invalid parameters"
	case KindAuthFailed:
		return "Not authenticated"
	case KindNetwork:
		return "Network error"
	case KindIndeterminate:
		return "We could not confirm your payment. Please check your orders before trying again."
	default:
		return "Something went wrong with your payment. Please check your orders before trying again."
	}
}
