package db

import (
	"time"

	"github.com/smallbiznis/eksporyuk/internal/config"
)

// PoolConfig holds connection pool limits.
type PoolConfig struct {
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func poolConfig(cfg config.Config) PoolConfig {
	pool := PoolConfig{
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Second,
	}
	if pool.MaxIdleConn <= 0 {
		pool.MaxIdleConn = 10
	}
	if pool.MaxOpenConn <= 0 {
		pool.MaxOpenConn = 50
	}
	return pool
}
