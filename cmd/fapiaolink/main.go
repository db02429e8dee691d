package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fapiaolink/internal/clock"
	"github.com/smallbiznis/fapiaolink/internal/config"
	"github.com/smallbiznis/fapiaolink/internal/correlation"
	"github.com/smallbiznis/fapiaolink/internal/invoice"
	"github.com/smallbiznis/fapiaolink/internal/ledger"
	"github.com/smallbiznis/fapiaolink/internal/migration"
	"github.com/smallbiznis/fapiaolink/internal/observability/logger"
	"github.com/smallbiznis/fapiaolink/internal/provider"
	"github.com/smallbiznis/fapiaolink/internal/reconcile"
	"github.com/smallbiznis/fapiaolink/internal/server"
	"github.com/smallbiznis/fapiaolink/internal/submit"
	"github.com/smallbiznis/fapiaolink/internal/syncengine"
	"github.com/smallbiznis/fapiaolink/internal/tenantdir"
	"github.com/smallbiznis/fapiaolink/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		fx.Provide(config.Load),
		fx.Provide(RegisterSnowflake),
		logger.Module,
		clock.Module,
		db.Module,
		migration.Module,

		// External systems
		tenantdir.Module,
		ledger.Module,
		provider.Module,

		// Functional domains
		correlation.Module,
		invoice.Module,
		submit.Module,
		reconcile.Module,
		syncengine.Module,
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
