// Package gateway abstracts the payment processors that own recurring
// charge execution. The lifecycle engine only talks to the interface;
// wire protocols live behind each implementation.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownGateway = errors.New("unknown_gateway")
	ErrNotSupported   = errors.New("gateway_operation_not_supported")
)

// Profile is the slice of subscription state a gateway needs to act on
// its side of the recurring relationship.
type Profile struct {
	SubscriptionID string
	ProfileID      string
	Gateway        string
	Expiration     time.Time
}

// Gateway is a payment-processing collaborator keyed by name.
type Gateway interface {
	Name() string

	// CanCancel reports whether the processor-side profile can be
	// cancelled for this subscription.
	CanCancel(p Profile) bool
	// Cancel stops processor-side renewals. Immediate revokes the
	// remaining paid window as well.
	Cancel(ctx context.Context, p Profile, immediate bool) error

	// GetExpiration returns the processor's authoritative expiration
	// for the profile.
	GetExpiration(ctx context.Context, p Profile) (time.Time, error)

	CanRetry(p Profile) bool
	// Retry asks the processor to re-attempt the last failed charge.
	// The outcome arrives asynchronously via webhook.
	Retry(ctx context.Context, p Profile) error
}
