package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/undangly/undangly/internal/clock"
	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/migration"
	"github.com/undangly/undangly/internal/observability"
	"github.com/undangly/undangly/internal/server"
	"github.com/undangly/undangly/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
