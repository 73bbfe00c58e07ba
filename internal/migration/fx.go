package migration

import (
	"strings"

	"github.com/smallbiznis/duesledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch strings.ToLower(cfg.DBType) {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		case "sqlite":
			return ApplySchema(conn)
		default:
			log.Warn("schema is managed externally for this database type", zap.String("type", cfg.DBType))
			return nil
		}
	}),
)
