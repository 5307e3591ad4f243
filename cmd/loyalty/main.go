package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/authorization"
	"github.com/smallbiznis/loyalty/internal/balance"
	"github.com/smallbiznis/loyalty/internal/claim"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/smallbiznis/loyalty/internal/ledger"
	"github.com/smallbiznis/loyalty/internal/loyalty"
	"github.com/smallbiznis/loyalty/internal/migration"
	"github.com/smallbiznis/loyalty/internal/observability"
	"github.com/smallbiznis/loyalty/internal/pendingcredit"
	"github.com/smallbiznis/loyalty/internal/profile"
	"github.com/smallbiznis/loyalty/internal/providers"
	"github.com/smallbiznis/loyalty/internal/ratelimit"
	"github.com/smallbiznis/loyalty/internal/reconcile"
	"github.com/smallbiznis/loyalty/internal/reward"
	"github.com/smallbiznis/loyalty/internal/seed"
	"github.com/smallbiznis/loyalty/internal/server"
	"github.com/smallbiznis/loyalty/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		ratelimit.Module,
		providers.Module,
		authorization.Module,

		// Functional Domains
		ledger.Module,
		balance.Module,
		reward.Module,
		claim.Module,
		pendingcredit.Module,
		profile.Module,
		loyalty.Module,

		seed.Module,
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
