package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, ttl), server
}

func lockers(t *testing.T) map[string]Locker {
	redisLocker, _ := newRedisLocker(t, time.Minute)

	return map[string]Locker{
		"memory": NewMemory(),
		"redis":  redisLocker,
	}
}

func TestLocker_ExclusiveAndReleasable(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := locker.TryLock(ctx, "exec-1")
			require.NoError(t, err)

			_, err = locker.TryLock(ctx, "exec-1")
			assert.ErrorIs(t, err, ErrHeld)

			other, err := locker.TryLock(ctx, "exec-2")
			require.NoError(t, err)
			require.NoError(t, other.Unlock(ctx))

			require.NoError(t, first.Unlock(ctx))

			again, err := locker.TryLock(ctx, "exec-1")
			require.NoError(t, err)
			require.NoError(t, again.Unlock(ctx))
		})
	}
}

func TestLocker_ConcurrentTryLockHasSingleWinner(t *testing.T) {
	for name, locker := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var (
				wg      sync.WaitGroup
				winners atomic.Int32
				start   = make(chan struct{})
			)

			for range 16 {
				wg.Add(1)

				go func() {
					defer wg.Done()
					<-start

					if _, err := locker.TryLock(ctx, "exec-race"); err == nil {
						winners.Add(1)
					}
				}()
			}

			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), winners.Load())
		})
	}
}

func TestMemory_DoubleUnlockIsHarmless(t *testing.T) {
	ctx := context.Background()
	locker := NewMemory()

	first, err := locker.TryLock(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, first.Unlock(ctx))

	second, err := locker.TryLock(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, first.Unlock(ctx))
	assert.True(t, locker.Held("k"), "a stale handle must not release the new holder")

	require.NoError(t, second.Unlock(ctx))
	assert.False(t, locker.Held("k"))
}

func TestRedis_ExpiredLockIsNotReleasedByStaleHolder(t *testing.T) {
	ctx := context.Background()
	locker, server := newRedisLocker(t, time.Second)

	stale, err := locker.TryLock(ctx, "exec-1")
	require.NoError(t, err)

	server.FastForward(2 * time.Second)

	fresh, err := locker.TryLock(ctx, "exec-1")
	require.NoError(t, err)

	require.NoError(t, stale.Unlock(ctx))
	assert.True(t, server.Exists(keyPrefix+"exec-1"))

	require.NoError(t, fresh.Unlock(ctx))
	assert.False(t, server.Exists(keyPrefix+"exec-1"))
}

func TestRedis_HeldLockRenewsLease(t *testing.T) {
	ctx := context.Background()
	locker, server := newRedisLocker(t, 300*time.Millisecond)
	key := keyPrefix + "exec-1"

	held, err := locker.TryLock(ctx, "exec-1")
	require.NoError(t, err)

	server.FastForward(250 * time.Millisecond)

	assert.Eventually(t, func() bool {
		return server.TTL(key) > 100*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	server.FastForward(250 * time.Millisecond)
	assert.True(t, server.Exists(key))

	_, err = locker.TryLock(ctx, "exec-1")
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, held.Unlock(ctx))
	assert.False(t, server.Exists(key))
}

func TestRedis_RenewalDoesNotExtendAnotherHolder(t *testing.T) {
	ctx := context.Background()
	locker, server := newRedisLocker(t, 300*time.Millisecond)
	key := keyPrefix + "exec-1"

	stale, err := locker.TryLock(ctx, "exec-1")
	require.NoError(t, err)

	require.NoError(t, server.Set(key, "someone-else"))
	server.SetTTL(key, 50*time.Millisecond)

	time.Sleep(250 * time.Millisecond)
	assert.LessOrEqual(t, server.TTL(key), 50*time.Millisecond)

	require.NoError(t, stale.Unlock(ctx))
	assert.True(t, server.Exists(key))
}

func TestNewRedis_DefaultTTL(t *testing.T) {
	locker := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), 0)
	assert.Equal(t, DefaultTTL, locker.ttl)
}
