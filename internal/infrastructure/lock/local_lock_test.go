package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := locker.Obtain(ctx, WalletKey(1))
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, l.Release(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, locker.locks)
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	a, err := locker.Obtain(ctx, WalletKey(1))
	require.NoError(t, err)
	b, err := locker.Obtain(ctx, WalletKey(2))
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx))
	require.NoError(t, b.Release(ctx))
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()
	held, err := locker.Obtain(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Obtain(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, held.Release(context.Background()))
	assert.ErrorIs(t, held.Release(context.Background()), ErrLockExpired)
	assert.Empty(t, locker.locks)
}
