package migration

import (
	"strings"

	"github.com/undangly/undangly/internal/config"
	"github.com/undangly/undangly/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		// The embedded migrations target postgres. Other dialects (sqlite in
		// tests, mysql deployments) manage schema out of band.
		if strings.EqualFold(cfg.DBType, "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			log.Warn("skipping embedded migrations for non-postgres database",
				zap.String("db_type", cfg.DBType),
			)
		}

		if cfg.SeedCatalog {
			return seed.EnsureDefaultCatalog(conn)
		}
		return nil
	}),
)
