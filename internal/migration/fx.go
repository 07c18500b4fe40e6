package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/quotabl/quotabl/internal/config"
	"github.com/quotabl/quotabl/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(cfg config.Config, conn *gorm.DB, node *snowflake.Node) error {
		// Non-postgres deployments manage schema themselves.
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}
		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn, node)
		}
		return nil
	}),
)
