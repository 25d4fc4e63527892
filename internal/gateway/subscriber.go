package gateway

import (
	"context"
	"time"

	"github.com/intellispire/commercestore/internal/event"
	"go.uber.org/zap"
)

const cancelTimeout = 10 * time.Second

// ProfileCanceller tears down the processor-side recurring profile
// after a subscription is cancelled locally. Failures are logged and
// retried by the operator; the local cancellation already happened.
type ProfileCanceller struct {
	registry *Registry
	log      *zap.Logger
}

func NewProfileCanceller(registry *Registry, log *zap.Logger) *ProfileCanceller {
	return &ProfileCanceller{
		registry: registry,
		log:      log.Named("gateway.profile_canceller"),
	}
}

// Register attaches the canceller to cancellation events.
func (c *ProfileCanceller) Register(bus *event.Bus) {
	bus.Subscribe(c.handle, event.KindCancelled)
}

func (c *ProfileCanceller) handle(ctx context.Context, evt event.Event) error {
	cancelled, ok := evt.(event.Cancelled)
	if !ok || cancelled.GatewayProfileID == "" {
		return nil
	}

	g, err := c.registry.Resolve(cancelled.Gateway)
	if err != nil {
		return err
	}

	profile := Profile{
		SubscriptionID: cancelled.ID,
		ProfileID:      cancelled.GatewayProfileID,
		Gateway:        cancelled.Gateway,
		Expiration:     cancelled.Expiration,
	}
	if !g.CanCancel(profile) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, cancelTimeout)
	defer cancel()

	if err := g.Cancel(ctx, profile, false); err != nil {
		return err
	}

	c.log.Info("gateway profile cancelled",
		zap.String("subscription_id", cancelled.ID),
		zap.String("gateway", cancelled.Gateway),
	)
	return nil
}
