package webhook

import (
	"context"
	"errors"
	"strings"

	subscriptiondomain "github.com/intellispire/commercestore/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Adapters *Registry
	Subs     subscriptiondomain.Service
}

// Service turns verified gateway notifications into lifecycle
// transitions.
type Service struct {
	log      *zap.Logger
	adapters *Registry
	subs     subscriptiondomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		log:      p.Log.Named("gateway.webhook"),
		adapters: p.Adapters,
		subs:     p.Subs,
	}
}

// Ingest verifies and parses a raw notification, then dispatches the
// resulting event. Ignorable events and notifications for
// subscriptions we do not track return nil so the gateway stops
// retrying.
func (s *Service) Ingest(ctx context.Context, gateway string, payload []byte, headers map[string]string) error {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		return ErrUnknownProvider
	}

	adapter, err := s.adapters.Resolve(gateway)
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrEventIgnored) {
			return nil
		}
		return err
	}

	return s.dispatch(ctx, event)
}

func (s *Service) dispatch(ctx context.Context, event *Event) error {
	if event.Type == EventRenewalRefunded {
		// Refund notifications carry the charge reference but often no
		// profile id; the engine finds the ledger row by transaction.
		return s.subs.RefundRenewal(ctx, subscriptiondomain.RefundRenewalRequest{
			Gateway:       event.Gateway,
			TransactionID: event.TransactionID,
			Principal:     subscriptiondomain.PrincipalGateway,
		})
	}

	sub, err := s.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}
	if sub == nil {
		s.log.Warn("webhook for unknown gateway profile",
			zap.String("gateway", event.Gateway),
			zap.String("event_id", event.EventID),
			zap.String("profile_id", event.ProfileID))
		return nil
	}

	switch event.Type {
	case EventRenewalSucceeded:
		_, err := s.subs.Renew(ctx, subscriptiondomain.RenewRequest{
			SubscriptionID: sub.ID.String(),
			TransactionID:  event.TransactionID,
			Gateway:        event.Gateway,
			Amount:         event.Amount,
			Tax:            event.Tax,
			Principal:      subscriptiondomain.PrincipalGateway,
		})
		return err
	case EventPaymentFailed:
		return s.subs.Fail(ctx, subscriptiondomain.FailRequest{
			SubscriptionID: sub.ID.String(),
			Principal:      subscriptiondomain.PrincipalGateway,
		})
	case EventProfileCancelled:
		return s.subs.Cancel(ctx, subscriptiondomain.CancelRequest{
			SubscriptionID: sub.ID.String(),
			Principal:      subscriptiondomain.PrincipalGateway,
		})
	default:
		return ErrInvalidPayload
	}
}

func (s *Service) resolveSubscription(ctx context.Context, event *Event) (*subscriptiondomain.Subscription, error) {
	if strings.TrimSpace(event.ProfileID) == "" {
		return nil, nil
	}
	sub, err := s.subs.GetByGatewayProfileID(ctx, event.ProfileID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
