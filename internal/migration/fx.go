package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) error {
		if cfg.RunMigrations {
			// The embedded migrations are written for postgres; other
			// dialects are expected to manage schema externally.
			if cfg.DBType == "postgres" {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := RunMigrations(sqlDB); err != nil {
					return err
				}
				log.Info("migrations applied")
			} else {
				log.Warn("skipping embedded migrations", zap.String("db_type", cfg.DBType))
			}
		}

		if cfg.SeedDemo {
			if err := SeedDemoProducts(conn, genID, clk.Now()); err != nil {
				return err
			}
			log.Info("demo catalog seeded")
		}
		return nil
	}),
)
