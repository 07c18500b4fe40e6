package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/clock"
	"github.com/quotabl/quotabl/internal/config"
	"github.com/quotabl/quotabl/internal/history"
	"github.com/quotabl/quotabl/internal/ledger"
	"github.com/quotabl/quotabl/internal/logger"
	"github.com/quotabl/quotabl/internal/migration"
	"github.com/quotabl/quotabl/internal/notification"
	"github.com/quotabl/quotabl/internal/pricing"
	"github.com/quotabl/quotabl/internal/quote"
	"github.com/quotabl/quotabl/internal/ratelimit"
	"github.com/quotabl/quotabl/internal/scheduler"
	"github.com/quotabl/quotabl/internal/server"
	"github.com/quotabl/quotabl/internal/suppliercost"
	"github.com/quotabl/quotabl/internal/validation"
	"github.com/quotabl/quotabl/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		ledger.Module,
		history.Module,
		suppliercost.Module,
		notification.Module,
		pricing.Module,
		validation.Module,
		quote.Module,
		ratelimit.Module,
		scheduler.Module,

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
