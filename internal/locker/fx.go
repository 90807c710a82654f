package locker

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/eksporyuk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locker",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when REDIS_ADDR is unset; locking then degrades
// to the database idempotency guards alone.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("redis not configured, fulfillment lock disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}
