// Package cache holds rendered contract status views between webhook
// deliveries. It is an optimisation only: every failure is logged and
// reported as a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StatusCache stores rendered status views under a per-contract generation.
// Invalidate bumps the generation, so a view computed before an invalidation
// is written under a generation no reader asks for again.
type StatusCache interface {
	// Generation returns the current generation. ok is false when the cache
	// cannot be consulted and the caller must skip it entirely.
	Generation(ctx context.Context, contractID int64) (gen int64, ok bool)
	Get(ctx context.Context, contractID, gen int64) ([]byte, bool)
	Set(ctx context.Context, contractID, gen int64, payload []byte)
	Invalidate(ctx context.Context, contractIDs ...int64)
}

func StatusKey(contractID, gen int64) string {
	return fmt.Sprintf("contract:%d:status:%d", contractID, gen)
}

func GenerationKey(contractID int64) string {
	return fmt.Sprintf("contract:%d:gen", contractID)
}

type Nop struct{}

func (Nop) Generation(context.Context, int64) (int64, bool) { return 0, false }
func (Nop) Get(context.Context, int64, int64) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, int64, int64, []byte)        {}
func (Nop) Invalidate(context.Context, ...int64)             {}

type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, logger: logger}
}

// Connect pings addr and returns a ready client. The caller closes it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (c *Redis) Generation(ctx context.Context, contractID int64) (int64, bool) {
	gen, err := c.client.Get(ctx, GenerationKey(contractID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		c.logger.Warn("status cache generation read failed", zap.Int64("contract_id", contractID), zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (c *Redis) Get(ctx context.Context, contractID, gen int64) ([]byte, bool) {
	b, err := c.client.Get(ctx, StatusKey(contractID, gen)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("status cache get failed", zap.Int64("contract_id", contractID), zap.Error(err))
		}
		return nil, false
	}
	return b, true
}

func (c *Redis) Set(ctx context.Context, contractID, gen int64, payload []byte) {
	if err := c.client.Set(ctx, StatusKey(contractID, gen), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("status cache set failed", zap.Int64("contract_id", contractID), zap.Error(err))
	}
}

// Invalidate advances the generation of each contract. Generation keys are
// written without a TTL so a generation never moves backwards.
func (c *Redis) Invalidate(ctx context.Context, contractIDs ...int64) {
	for _, id := range contractIDs {
		if err := c.client.Incr(ctx, GenerationKey(id)).Err(); err != nil {
			c.logger.Error("status cache invalidate failed", zap.Int64("contract_id", id), zap.Error(err))
		}
	}
}
