package gateway

import (
	"github.com/intellispire/commercestore/internal/config"
	"github.com/intellispire/commercestore/internal/event"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway",
	fx.Provide(
		NewRegistryFromConfig,
		NewProfileCanceller,
	),
	fx.Invoke(registerCollaborators),
	fx.Invoke(registerProfileCanceller),
)

// hostedGateways are the processors the webhook surface accepts
// notifications from. Each needs a resolvable collaborator so expire
// verification and retry checks work on their subscriptions.
var hostedGateways = []string{"stripe", "adyen", "braintree"}

func NewRegistryFromConfig(cfg config.Config) *Registry {
	return NewRegistry(cfg.DefaultGateway)
}

func registerCollaborators(registry *Registry) {
	registry.Register(NewManual())
	for _, name := range hostedGateways {
		registry.Register(NewHosted(name))
	}
}

func registerProfileCanceller(canceller *ProfileCanceller, bus *event.Bus) {
	canceller.Register(bus)
}
