package gateway

import (
	"context"
	"time"
)

// Manual handles subscriptions with no processor-side profile, where
// an operator records charges by hand. Cancel is a local no-op and the
// stored expiration is authoritative.
type Manual struct{}

func NewManual() *Manual { return &Manual{} }

func (Manual) Name() string { return "manual" }

func (Manual) CanCancel(p Profile) bool { return true }

func (Manual) Cancel(_ context.Context, _ Profile, _ bool) error { return nil }

func (Manual) GetExpiration(_ context.Context, p Profile) (time.Time, error) {
	return p.Expiration, nil
}

func (Manual) CanRetry(Profile) bool { return false }

func (Manual) Retry(context.Context, Profile) error { return ErrNotSupported }
