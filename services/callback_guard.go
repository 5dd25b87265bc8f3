package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CallbackGuard short-circuits duplicate deliveries of the same callback that arrive while the
// first one is still being processed. The payment row stays the source of truth.
type CallbackGuard interface {
	// Acquire reports false when the same callback is already in flight.
	Acquire(ctx context.Context, paymentID uuid.UUID, token string) bool
	Release(ctx context.Context, paymentID uuid.UUID, token string)
}

type redisCallbackGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCallbackGuard(client *redis.Client, ttl time.Duration, logger *zap.Logger) CallbackGuard {
	if client == nil {
		return NoopCallbackGuard()
	}
	return &redisCallbackGuard{client: client, ttl: ttl, logger: logger}
}

func (g *redisCallbackGuard) key(paymentID uuid.UUID, token string) string {
	return fmt.Sprintf("callback:payment:%s:%s", paymentID, token)
}

// Acquire fails open: when redis is unreachable the row locks still serialize the callback.
func (g *redisCallbackGuard) Acquire(ctx context.Context, paymentID uuid.UUID, token string) bool {
	ok, err := g.client.SetNX(ctx, g.key(paymentID, token), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		g.logger.Warn("Callback guard unavailable", zap.String("payment_id", paymentID.String()), zap.Error(err))
		return true
	}
	return ok
}

func (g *redisCallbackGuard) Release(ctx context.Context, paymentID uuid.UUID, token string) {
	if err := g.client.Del(ctx, g.key(paymentID, token)).Err(); err != nil {
		g.logger.Warn("Failed to release callback guard", zap.String("payment_id", paymentID.String()), zap.Error(err))
	}
}

type noopCallbackGuard struct{}

func NoopCallbackGuard() CallbackGuard { return noopCallbackGuard{} }

func (noopCallbackGuard) Acquire(context.Context, uuid.UUID, string) bool { return true }
func (noopCallbackGuard) Release(context.Context, uuid.UUID, string)      {}
