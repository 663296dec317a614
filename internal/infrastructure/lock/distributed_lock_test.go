package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLock_TryLockIsExclusive(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	first := NewDistributedLock(client, "k", "a", time.Second)
	second := NewDistributedLock(client, "k", "b", time.Second)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_UnlockKeepsForeignLock(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	owner := NewDistributedLock(client, "k", "owner", time.Second)
	intruder := NewDistributedLock(client, "k", "intruder", time.Second)

	ok, err := owner.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, intruder.Unlock(ctx))

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "owner", got)
}

func TestDistributedLock_ExpiresAfterTTL(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	l := NewDistributedLock(client, "k", "a", time.Second)
	ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = NewDistributedLock(client, "k", "b", time.Second).TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_LockGivesUp(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "k", "a", time.Minute)
	ok, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	err = NewDistributedLock(client, "k", "b", time.Minute).Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	var current, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := NewRequestLock(client, 42, 5*time.Second)
			if err := l.Lock(ctx, 5*time.Millisecond, 400); err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			_ = l.Unlock(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
}

func TestNewRequestLock_Key(t *testing.T) {
	_, client := setupRedis(t)
	l := NewRequestLock(client, 7, time.Second)
	assert.Equal(t, "money_request:lock:7", l.Key())
}
