package storage

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whale-role-bot/internal/config"
	apperrors "github.com/whale-role-bot/internal/errors"
)

const redisPingTimeout = 5 * time.Second

// RedisCache wraps the Redis client backing shared cooldowns
type RedisCache struct {
	client *redis.Client
}

// redisOptions builds client options. Cooldown keys are tiny and touched a
// few times per command, so the pool stays small and fails fast.
func redisOptions(cfg *config.RedisConfig) *redis.Options {
	poolSize := cfg.MaxConnections
	if poolSize <= 0 {
		poolSize = 4
	}

	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 1,
		MaxRetries:   2,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolTimeout:  2 * time.Second,
	}
}

// NewRedisCache connects to Redis and verifies the connection.
// A failed ping is a cache error and may be retried.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(redisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.NewCacheError("connect redis", err)
	}

	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client returns the underlying Redis client
func (r *RedisCache) Client() *redis.Client {
	return r.client
}

// Ping checks if Redis is reachable
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
