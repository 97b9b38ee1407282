package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"walletservice/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

func InitRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// BalanceCache holds a short-lived copy of wallet balances for reads.
// The database stays authoritative; writers invalidate after commit.
type BalanceCache interface {
	Get(ctx context.Context, userID string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, userID string, balance decimal.Decimal) error
	Invalidate(ctx context.Context, userIDs ...string) error
}

type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBalanceCache(client *redis.Client, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

func balanceKey(userID string) string {
	return "wallet:balance:" + userID
}

func (c *RedisBalanceCache) Get(ctx context.Context, userID string) (decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, balanceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("corrupt cached balance for %s: %w", userID, err)
	}
	return balance, true, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, userID string, balance decimal.Decimal) error {
	return c.client.Set(ctx, balanceKey(userID), balance.String(), c.ttl).Err()
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, balanceKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}
