package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duesledger/internal/audit"
	"github.com/smallbiznis/duesledger/internal/authorization"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	"github.com/smallbiznis/duesledger/internal/lock"
	"github.com/smallbiznis/duesledger/internal/membership"
	"github.com/smallbiznis/duesledger/internal/migration"
	"github.com/smallbiznis/duesledger/internal/notification"
	"github.com/smallbiznis/duesledger/internal/observability"
	"github.com/smallbiznis/duesledger/internal/payment"
	"github.com/smallbiznis/duesledger/internal/proof"
	"github.com/smallbiznis/duesledger/internal/providers"
	"github.com/smallbiznis/duesledger/internal/reconciliation"
	"github.com/smallbiznis/duesledger/internal/server"
	"github.com/smallbiznis/duesledger/internal/ticket"
	"github.com/smallbiznis/duesledger/internal/treasury"
	"github.com/smallbiznis/duesledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,

		// Ledger
		audit.Module,
		notification.Module,
		membership.Module,
		payment.Module,
		reconciliation.Module,
		providers.Module,
		ticket.Module,
		proof.Module,
		treasury.Module,

		authorization.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
