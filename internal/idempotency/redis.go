package idempotency

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const guardKeyPrefix = "vivero:webhook:inflight:"

type redisGuard struct {
	client *redis.Client
	log    *zap.Logger
	window time.Duration
}

// NewRedisGuard returns a guard shared across instances via SETNX with TTL.
// Redis errors fail open: processing proceeds and the storage constraints
// still protect correctness.
func NewRedisGuard(client *redis.Client, log *zap.Logger, window time.Duration) Guard {
	if window <= 0 {
		window = 4 * time.Second
	}
	return &redisGuard{
		client: client,
		log:    log.Named("idempotency.redis"),
		window: window,
	}
}

func (g *redisGuard) TryBegin(ctx context.Context, paymentID string) bool {
	if paymentID == "" {
		return false
	}
	ok, err := g.client.SetNX(ctx, guardKeyPrefix+paymentID, time.Now().UTC().UnixMilli(), g.window).Result()
	if err != nil {
		g.log.Warn("guard check failed, proceeding without it",
			zap.String("payment_id", paymentID), zap.Error(err))
		return true
	}
	return ok
}
