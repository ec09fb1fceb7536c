package cooldown

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/types"
)

const redisKeyPrefix = "cooldown:"

// RedisGate keeps cooldowns in Redis so they survive restarts and are shared
// between replicas. Redis expires the keys itself.
type RedisGate struct {
	client redis.Cmdable
	window time.Duration
	scope  string
}

// NewRedisGate creates a Redis-backed gate. scope separates gates sharing one database.
func NewRedisGate(client redis.Cmdable, scope string, window time.Duration) *RedisGate {
	return &RedisGate{
		client: client,
		window: window,
		scope:  scope,
	}
}

func (g *RedisGate) redisKey(userID string, command types.CommandType) string {
	return redisKeyPrefix + g.scope + ":" + key(userID, command)
}

// IsOnCooldown reports whether the user must still wait
func (g *RedisGate) IsOnCooldown(ctx context.Context, userID string, command types.CommandType) (bool, error) {
	remaining, err := g.Remaining(ctx, userID, command)
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Remaining returns the key's remaining TTL, or zero when absent
func (g *RedisGate) Remaining(ctx context.Context, userID string, command types.CommandType) (time.Duration, error) {
	ttl, err := g.client.PTTL(ctx, g.redisKey(userID, command)).Result()
	if err != nil {
		return 0, apperrors.NewCacheError("read cooldown", err)
	}
	// -2 means missing, -1 means no expiry; neither is an active window
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

// Set starts a new window for the user and command
func (g *RedisGate) Set(ctx context.Context, userID string, command types.CommandType) error {
	expiresAt := time.Now().Add(g.window).UnixMilli()
	if err := g.client.Set(ctx, g.redisKey(userID, command), expiresAt, g.window).Err(); err != nil {
		return apperrors.NewCacheError("set cooldown", err)
	}
	return nil
}
