package storage

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-role-bot/internal/config"
	apperrors "github.com/whale-role-bot/internal/errors"
)

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(testContext(t), &config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 2,
	})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, cache.Close())
	}()

	require.NoError(t, cache.Ping(testContext(t)))
	require.NoError(t, cache.Client().Set(testContext(t), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err = NewRedisCache(testContext(t), &config.RedisConfig{Host: host, Port: port, MaxConnections: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err), "a refused connection should be retried at startup")
}
