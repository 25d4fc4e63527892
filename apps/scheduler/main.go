// Standalone sweep worker. Runs the daily maintenance jobs without
// exposing the HTTP API; deploy one instance per environment.
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/clock"
	"github.com/intellispire/commercestore/internal/config"
	"github.com/intellispire/commercestore/internal/event"
	"github.com/intellispire/commercestore/internal/gateway"
	"github.com/intellispire/commercestore/internal/locking"
	"github.com/intellispire/commercestore/internal/migration"
	"github.com/intellispire/commercestore/internal/observability"
	"github.com/intellispire/commercestore/internal/order"
	"github.com/intellispire/commercestore/internal/payment"
	"github.com/intellispire/commercestore/internal/scheduler"
	"github.com/intellispire/commercestore/internal/subscription"
	"github.com/intellispire/commercestore/pkg/db"
	"go.uber.org/fx"
)

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		event.Module,
		locking.Module,
		order.Module,
		payment.Module,
		gateway.Module,
		subscription.Module,
		scheduler.Module,
	)

	app.Run()
}
