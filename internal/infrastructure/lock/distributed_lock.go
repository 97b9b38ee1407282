package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	ErrLockFailed  = errors.New("failed to obtain lock")
	ErrLockExpired = errors.New("lock expired before release")
)

// Locker hands out mutually exclusive locks by key. The redis implementation
// works across instances; LocalLocker only within one process.
type Locker interface {
	Obtain(ctx context.Context, key string) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// WalletKey is the lock key serializing balance writes on one wallet.
func WalletKey(walletID int64) string {
	return fmt.Sprintf("wallet:lock:%d", walletID)
}

// DistributedLock is a single redis lock: SET key token NX PX ttl, released
// with a compare-and-delete script so an expired holder cannot delete a
// lock that has since been taken by someone else.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock makes one non-blocking attempt.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock retries TryLock every retryInterval, at most maxRetries times.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	return l.Unlock(ctx)
}

// RedisLocker creates one DistributedLock per Obtain call with a fresh owner token.
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (r *RedisLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l := NewDistributedLock(r.client, key, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx, r.retryInterval, r.maxRetries); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return l, nil
}
