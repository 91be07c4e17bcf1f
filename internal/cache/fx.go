package cache

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/reserva/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Provide wires the redis-backed balance cache when REDIS_ADDR is set.
// Without it the cache stays nil and reads fall through to SQL.
func Provide(cfg config.Config, log *zap.Logger) BalanceCache {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	log.Info("points balance cache enabled", zap.String("addr", cfg.RedisAddr))
	return NewRedisBalanceCache(client)
}

var Module = fx.Module("cache",
	fx.Provide(Provide),
)
