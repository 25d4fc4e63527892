package gateway

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterCollaboratorsCoversWebhookProviders(t *testing.T) {
	registry := NewRegistry("manual")
	registerCollaborators(registry)

	for _, name := range []string{"manual", "stripe", "adyen", "braintree"} {
		if _, err := registry.Resolve(name); err != nil {
			t.Fatalf("expected %s to resolve, got %v", name, err)
		}
	}

	if _, err := registry.Resolve(""); err != nil {
		t.Fatalf("expected empty name to fall back, got %v", err)
	}
	if _, err := registry.Resolve("nochex"); !errors.Is(err, ErrUnknownGateway) {
		t.Fatalf("expected unknown gateway error, got %v", err)
	}
}

func TestHostedUsesStoredExpiration(t *testing.T) {
	g := NewHosted("stripe")
	stored := time.Date(2024, 7, 1, 23, 59, 59, 0, time.UTC)

	got, err := g.GetExpiration(context.Background(), Profile{Expiration: stored})
	if err != nil {
		t.Fatalf("get expiration: %v", err)
	}
	if !got.Equal(stored) {
		t.Fatalf("expected stored expiration %v, got %v", stored, got)
	}

	if g.CanRetry(Profile{}) {
		t.Fatal("expected hosted gateway to refuse retries")
	}
	if g.CanCancel(Profile{}) {
		t.Fatal("expected hosted gateway to refuse profile cancellation")
	}
	if err := g.Retry(context.Background(), Profile{}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
}
