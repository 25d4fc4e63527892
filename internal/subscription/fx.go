package subscription

import (
	"github.com/intellispire/commercestore/internal/subscription/repository"
	"github.com/intellispire/commercestore/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
