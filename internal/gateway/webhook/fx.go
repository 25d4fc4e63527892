package webhook

import (
	"github.com/intellispire/commercestore/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.webhook",
	fx.Provide(
		newAdapterRegistry,
		NewService,
	),
)

func newAdapterRegistry(cfg config.Config) *Registry {
	adapters := make([]Adapter, 0, 3)
	if cfg.StripeWebhookSecret != "" {
		adapters = append(adapters, NewStripeAdapter(cfg.StripeWebhookSecret))
	}
	if cfg.AdyenHMACKey != "" {
		adapters = append(adapters, NewAdyenAdapter(cfg.AdyenHMACKey))
	}
	if cfg.BraintreePrivateKey != "" {
		adapters = append(adapters, NewBraintreeAdapter(cfg.BraintreePrivateKey))
	}
	return NewAdapterRegistry(adapters...)
}
