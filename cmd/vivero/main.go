package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/audit"
	"github.com/viveroverde/vivero/internal/checkout"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/config"
	"github.com/viveroverde/vivero/internal/gateway"
	"github.com/viveroverde/vivero/internal/idempotency"
	"github.com/viveroverde/vivero/internal/inventory"
	"github.com/viveroverde/vivero/internal/logger"
	"github.com/viveroverde/vivero/internal/migration"
	"github.com/viveroverde/vivero/internal/observability"
	"github.com/viveroverde/vivero/internal/order"
	"github.com/viveroverde/vivero/internal/reconcile"
	"github.com/viveroverde/vivero/internal/server"
	"github.com/viveroverde/vivero/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		idempotency.Module,
		migration.Module,

		// Functional domains
		gateway.Module,
		audit.Module,
		inventory.Module,
		checkout.Module,
		order.Module,
		reconcile.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
