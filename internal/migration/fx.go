package migration

import (
	"github.com/smallbiznis/stockledger/internal/config"
	"github.com/smallbiznis/stockledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Apply runs the versioned migrations on postgres and AutoMigrate elsewhere.
func Apply(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	log = log.Named("migration")
	if cfg.DBType == db.TypePostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations applied", zap.String("db_type", cfg.DBType))
		return nil
	}

	if !cfg.DBAutoMigrate {
		log.Info("auto migrate disabled", zap.String("db_type", cfg.DBType))
		return nil
	}
	if err := AutoMigrate(conn); err != nil {
		return err
	}
	log.Info("schema auto migrated", zap.String("db_type", cfg.DBType))
	return nil
}
