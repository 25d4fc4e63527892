package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/intellispire/commercestore/internal/clock"
	"github.com/intellispire/commercestore/internal/migration"
	"github.com/intellispire/commercestore/internal/observability"
	"github.com/intellispire/commercestore/internal/server"
	"github.com/intellispire/commercestore/pkg/db"
	"go.uber.org/fx"
)

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)

	app.Run()
}
