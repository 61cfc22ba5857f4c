package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/locbyt/valetd/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(cfg config.Config, db *gorm.DB, node *snowflake.Node, log *zap.Logger) error {
		if !cfg.SeedDevData {
			return nil
		}
		if err := EnsureSampleOrder(db, node); err != nil {
			return err
		}
		log.Info("dev seed applied")
		return nil
	}),
)
