package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"go.uber.org/zap"
)

type stubSubscriptionService struct {
	subscriptiondomain.Service

	byProfile map[string]subscriptiondomain.Subscription

	renewed   []subscriptiondomain.RenewRequest
	failed    []subscriptiondomain.FailRequest
	cancelled []subscriptiondomain.CancelRequest
	notes     []subscriptiondomain.AddNoteRequest
	refunded  []subscriptiondomain.RefundRenewalRequest
}

func (s *stubSubscriptionService) GetByGatewayProfileID(ctx context.Context, profileID string) (subscriptiondomain.Subscription, error) {
	sub, ok := s.byProfile[profileID]
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *stubSubscriptionService) Renew(ctx context.Context, req subscriptiondomain.RenewRequest) (subscriptiondomain.RenewResponse, error) {
	s.renewed = append(s.renewed, req)
	return subscriptiondomain.RenewResponse{}, nil
}

func (s *stubSubscriptionService) Fail(ctx context.Context, req subscriptiondomain.FailRequest) error {
	s.failed = append(s.failed, req)
	return nil
}

func (s *stubSubscriptionService) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) error {
	s.cancelled = append(s.cancelled, req)
	return nil
}

func (s *stubSubscriptionService) AddNote(ctx context.Context, req subscriptiondomain.AddNoteRequest) error {
	s.notes = append(s.notes, req)
	return nil
}

func (s *stubSubscriptionService) RefundRenewal(ctx context.Context, req subscriptiondomain.RefundRenewalRequest) error {
	s.refunded = append(s.refunded, req)
	return nil
}

func newTestIngestService(subs subscriptiondomain.Service) *Service {
	return &Service{
		log:      zap.NewNop(),
		adapters: NewAdapterRegistry(NewStripeAdapter("whsec_test")),
		subs:     subs,
	}
}

func stripeRenewalPayload(t *testing.T, eventType, profileID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      "evt_1",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":           "in_1",
				"subscription": profileID,
				"charge":       "ch_1",
				"amount_paid":  2500,
				"created":      time.Now().Unix(),
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func TestIngestDispatchesRenewal(t *testing.T) {
	subs := &stubSubscriptionService{
		byProfile: map[string]subscriptiondomain.Subscription{
			"sub_abc": {ID: 42},
		},
	}
	svc := newTestIngestService(subs)

	payload := stripeRenewalPayload(t, "invoice.payment_succeeded", "sub_abc")
	headers := map[string]string{
		"Stripe-Signature": buildStripeSignatureHeader("whsec_test", payload, time.Now().Unix()),
	}

	if err := svc.Ingest(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(subs.renewed) != 1 {
		t.Fatalf("expected one renewal, got %d", len(subs.renewed))
	}
	req := subs.renewed[0]
	if req.SubscriptionID != "42" {
		t.Fatalf("expected subscription 42, got %s", req.SubscriptionID)
	}
	if req.TransactionID != "ch_1" {
		t.Fatalf("expected transaction ch_1, got %s", req.TransactionID)
	}
	if req.Principal != subscriptiondomain.PrincipalGateway {
		t.Fatalf("expected gateway principal, got %s", req.Principal)
	}
}

func TestIngestDispatchesFailureAndCancellation(t *testing.T) {
	subs := &stubSubscriptionService{
		byProfile: map[string]subscriptiondomain.Subscription{
			"sub_abc": {ID: 42},
		},
	}
	svc := newTestIngestService(subs)

	payload := stripeRenewalPayload(t, "invoice.payment_failed", "sub_abc")
	headers := map[string]string{
		"Stripe-Signature": buildStripeSignatureHeader("whsec_test", payload, time.Now().Unix()),
	}
	if err := svc.Ingest(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("ingest failure event: %v", err)
	}
	if len(subs.failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(subs.failed))
	}

	cancelPayload, err := json.Marshal(map[string]any{
		"id":      "evt_2",
		"type":    "customer.subscription.deleted",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{"id": "sub_abc"},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	headers["Stripe-Signature"] = buildStripeSignatureHeader("whsec_test", cancelPayload, time.Now().Unix())
	if err := svc.Ingest(context.Background(), "stripe", cancelPayload, headers); err != nil {
		t.Fatalf("ingest cancellation event: %v", err)
	}
	if len(subs.cancelled) != 1 {
		t.Fatalf("expected one cancellation, got %d", len(subs.cancelled))
	}
}

func TestIngestUnknownProfileIsAcknowledged(t *testing.T) {
	subs := &stubSubscriptionService{byProfile: map[string]subscriptiondomain.Subscription{}}
	svc := newTestIngestService(subs)

	payload := stripeRenewalPayload(t, "invoice.payment_succeeded", "sub_missing")
	headers := map[string]string{
		"Stripe-Signature": buildStripeSignatureHeader("whsec_test", payload, time.Now().Unix()),
	}

	if err := svc.Ingest(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("expected nil for unknown profile, got %v", err)
	}
	if len(subs.renewed) != 0 {
		t.Fatalf("expected no renewals, got %d", len(subs.renewed))
	}
}

func TestIngestRefundReachesEngineWithoutProfileID(t *testing.T) {
	subs := &stubSubscriptionService{byProfile: map[string]subscriptiondomain.Subscription{}}
	svc := newTestIngestService(subs)

	payload, err := json.Marshal(map[string]any{
		"id":      "evt_refund",
		"type":    "charge.refunded",
		"created": time.Now().Unix(),
		"data": map[string]any{
			"object": map[string]any{
				"id":              "ch_9",
				"amount_refunded": 2500,
				"created":         time.Now().Unix(),
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	headers := map[string]string{
		"Stripe-Signature": buildStripeSignatureHeader("whsec_test", payload, time.Now().Unix()),
	}

	if err := svc.Ingest(context.Background(), "stripe", payload, headers); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(subs.refunded) != 1 {
		t.Fatalf("expected one refund dispatch, got %d", len(subs.refunded))
	}
	req := subs.refunded[0]
	if req.Gateway != "stripe" || req.TransactionID != "ch_9" {
		t.Fatalf("unexpected refund request %+v", req)
	}
	if req.Principal != subscriptiondomain.PrincipalGateway {
		t.Fatalf("expected gateway principal, got %s", req.Principal)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	subs := &stubSubscriptionService{byProfile: map[string]subscriptiondomain.Subscription{}}
	svc := newTestIngestService(subs)

	payload := stripeRenewalPayload(t, "invoice.payment_succeeded", "sub_abc")
	headers := map[string]string{
		"Stripe-Signature": buildStripeSignatureHeader("whsec_wrong", payload, time.Now().Unix()),
	}

	if err := svc.Ingest(context.Background(), "stripe", payload, headers); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	svc := newTestIngestService(&stubSubscriptionService{})
	if err := svc.Ingest(context.Background(), "paypal", []byte(`{}`), nil); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected unknown provider, got %v", err)
	}
}
