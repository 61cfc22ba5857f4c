package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/locbyt/valetd/internal/clock"
	"github.com/locbyt/valetd/internal/config"
	"github.com/locbyt/valetd/internal/migration"
	"github.com/locbyt/valetd/internal/observability"
	"github.com/locbyt/valetd/internal/order"
	"github.com/locbyt/valetd/internal/seed"
	"github.com/locbyt/valetd/internal/server"
	"github.com/locbyt/valetd/internal/stream"
	"github.com/locbyt/valetd/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// Functional domains
		order.Module,
		stream.Module,

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
