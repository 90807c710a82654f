package migration

import (
	"strings"

	"github.com/smallbiznis/eksporyuk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
		if dbType == "" || dbType == "postgres" {
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := ApplyStatements(sqlDB); err != nil {
			return err
		}

		log.Info("schema migrations applied", zap.String("db_type", cfg.DBType))
		return nil
	}),
)
