package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pillstack/backoffice/internal/clock"
	"github.com/pillstack/backoffice/internal/config"
	"github.com/pillstack/backoffice/internal/migration"
	"github.com/pillstack/backoffice/internal/observability"
	"github.com/pillstack/backoffice/internal/server"
	"github.com/pillstack/backoffice/pkg/db"
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
