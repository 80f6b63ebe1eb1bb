package idempotency

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/viveroverde/vivero/internal/clock"
	"github.com/viveroverde/vivero/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewGuard picks the shared redis guard when REDIS_ADDR is configured and
// falls back to the in-process one otherwise.
func NewGuard(cfg config.Config, clk clock.Clock, log *zap.Logger) Guard {
	if cfg.RedisAddr == "" {
		return NewLocalGuard(clk, cfg.IdempotencyWindow)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisGuard(client, log, cfg.IdempotencyWindow)
}

var Module = fx.Module("idempotency",
	fx.Provide(NewGuard),
)
