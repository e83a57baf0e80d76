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

func TestLocalSerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "task-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, l.entries, "entries are dropped once released")
}

func TestLocalIndependentKeys(t *testing.T) {
	l := NewLocal(50 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalTimeout(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "busy")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "busy")
	assert.ErrorIs(t, err, ErrTimeout)

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(ctx, "busy")
	require.NoError(t, err)
	again()
}

func TestLocalCanceledContext(t *testing.T) {
	l := NewLocal(0)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func setupRedisLocker(t *testing.T, cfg RedisConfig) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, cfg, nil), mr
}

func TestRedisLockAndRelease(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Timeout = 100 * time.Millisecond
	cfg.RetryInterval = 5 * time.Millisecond
	l, mr := setupRedisLocker(t, cfg)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("collabtodo:lock:task-1"))

	_, err = l.Lock(ctx, "task-1")
	assert.ErrorIs(t, err, ErrTimeout)

	unlock()
	assert.False(t, mr.Exists("collabtodo:lock:task-1"))

	again, err := l.Lock(ctx, "task-1")
	require.NoError(t, err)
	again()
}

func TestRedisReleaseKeepsForeignToken(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Timeout = 50 * time.Millisecond
	l, mr := setupRedisLocker(t, cfg)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "task-2")
	require.NoError(t, err)

	// simulate expiry followed by another holder taking the key
	require.NoError(t, mr.Set("collabtodo:lock:task-2", "someone-else"))
	unlock()

	got, err := mr.Get("collabtodo:lock:task-2")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockExpires(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.TTL = time.Second
	cfg.Timeout = 50 * time.Millisecond
	l, mr := setupRedisLocker(t, cfg)
	ctx := context.Background()

	_, err := l.Lock(ctx, "crashed")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	unlock, err := l.Lock(ctx, "crashed")
	require.NoError(t, err)
	unlock()
}
