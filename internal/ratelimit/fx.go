package ratelimit

import (
	"github.com/quotabl/quotabl/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ProvideRedis returns nil when no address is configured; the locker and the
// bucket degrade to no-ops and callers fall back to single-instance behavior.
func ProvideRedis(cfg config.Config, log *zap.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, distributed locking and rate limiting disabled")
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

var Module = fx.Module("ratelimit",
	fx.Provide(
		ProvideRedis,
		NewLocker,
		NewTokenBucket,
	),
)
