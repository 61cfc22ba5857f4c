package migration

import (
	"github.com/locbyt/valetd/internal/config"
	orderdomain "github.com/locbyt/valetd/internal/order/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// golang-migrate is wired for postgres only; other dialects
			// (sqlite in development) derive the schema from the models.
			return conn.AutoMigrate(
				&orderdomain.Order{},
				&orderdomain.OrderEvent{},
				&orderdomain.IdempotencyKey{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
