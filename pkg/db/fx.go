package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/eksporyuk/internal/config"
	obslogger "github.com/smallbiznis/eksporyuk/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(Open),
)

// Open connects to the configured database and registers tracing and pool
// metrics plugins.
func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := obslogger.DefaultGormLoggerConfig()
	if !cfg.IsProduction() {
		gormCfg.Level = gormlogger.Info
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 obslogger.NewGormLogger(gormCfg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
		return nil, fmt.Errorf("register otelgorm: %w", err)
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.DBName,
		RefreshInterval: 15,
	})); err != nil {
		log.Warn("gorm prometheus plugin unavailable", zap.Error(err))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	pool := poolConfig(cfg)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConn)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			return sqlDB.Close()
		},
	})

	log.Info("database connected",
		zap.String("type", cfg.DBType),
		zap.String("name", cfg.DBName),
	)
	return conn, nil
}
