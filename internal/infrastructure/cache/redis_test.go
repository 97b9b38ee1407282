package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"walletservice/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*miniredis.Miniredis, *RedisBalanceCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisBalanceCache(client, time.Minute)
}

func TestRedisBalanceCache(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "user-1", decimal.RequireFromString("1500.25")))
	require.NoError(t, c.Set(ctx, "user-2", decimal.NewFromInt(3)))

	got, ok, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1500.25").Equal(got))
	assert.Equal(t, time.Minute, mr.TTL(balanceKey("user-1")))

	require.NoError(t, c.Invalidate(ctx, "user-1", "user-2"))
	_, ok, err = c.Get(ctx, "user-2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Invalidate(ctx))
}

func TestRedisBalanceCache_Expires(t *testing.T) {
	mr, c := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "user-1", decimal.NewFromInt(10)))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBalanceCache_CorruptValue(t *testing.T) {
	mr, c := newCache(t)
	require.NoError(t, mr.Set(balanceKey("user-1"), "not-a-number"))

	_, _, err := c.Get(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := &config.RedisConfig{Host: mr.Host(), Port: port}

	client, err := InitRedis(cfg)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = InitRedis(cfg)
	assert.Error(t, err)
}
