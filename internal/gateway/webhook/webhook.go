// Package webhook verifies and normalizes payment gateway
// notifications into lifecycle events.
package webhook

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownProvider  = errors.New("unknown_webhook_provider")
	ErrInvalidPayload   = errors.New("invalid_webhook_payload")
	ErrInvalidSignature = errors.New("invalid_webhook_signature")
	ErrEventIgnored     = errors.New("webhook_event_ignored")
)

// EventType classifies a gateway notification by the lifecycle
// action it maps to.
type EventType string

const (
	EventRenewalSucceeded EventType = "renewal_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventProfileCancelled EventType = "profile_cancelled"
	EventRenewalRefunded  EventType = "renewal_refunded"
)

// Event is a gateway notification reduced to the fields the
// lifecycle engine acts on. Amounts are in major currency units.
type Event struct {
	Gateway       string
	EventID       string
	Type          EventType
	ProfileID     string
	TransactionID string
	Amount        float64
	Tax           *float64
	OccurredAt    time.Time
}

// Adapter verifies and parses one gateway's notification format.
type Adapter interface {
	GatewayName() string
	Verify(ctx context.Context, payload []byte, headers map[string]string) error
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

// Registry holds the configured webhook adapters keyed by gateway name.
type Registry struct {
	adapters map[string]Adapter
}

func NewAdapterRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[strings.ToLower(a.GatewayName())] = a
	}
	return r
}

func (r *Registry) Resolve(gateway string) (Adapter, error) {
	a, ok := r.adapters[strings.ToLower(strings.TrimSpace(gateway))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return a, nil
}
