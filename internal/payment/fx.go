package payment

import (
	paymentservice "github.com/intellispire/commercestore/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.recorder",
	fx.Provide(paymentservice.NewRecorder),
)
