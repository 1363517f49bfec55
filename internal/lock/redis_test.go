package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/auction-engine/internal/lock"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisLockExclusiveAcrossClients(t *testing.T) {
	mr, rdb := newRedis(t)
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()
	ctx := context.Background()

	a := lock.NewRedis(rdb, time.Second)
	b := lock.NewRedis(other, time.Second)

	unlock, err := a.TryAcquire(ctx, "auction-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:auction-1"))

	_, err = b.TryAcquire(ctx, "auction-1")
	assert.True(t, errors.Is(err, lock.ErrLockHeld))

	unlock()
	unlock()
	assert.False(t, mr.Exists("lock:auction-1"))

	again, err := b.TryAcquire(ctx, "auction-1")
	require.NoError(t, err)
	again()
}

func TestRedisUnlockKeepsAnotherHoldersLock(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := lock.NewRedis(rdb, time.Second)

	stale, err := l.TryAcquire(ctx, "auction-1")
	require.NoError(t, err)

	// The first holder's TTL ran out and someone else took the lock.
	mr.Del("lock:auction-1")
	require.NoError(t, mr.Set("lock:auction-1", "other-token"))

	stale()
	got, err := mr.Get("lock:auction-1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLockRenewsWhileHeld(t *testing.T) {
	mr, rdb := newRedis(t)
	ttl := 300 * time.Millisecond
	l := lock.NewRedis(rdb, ttl)

	unlock, err := l.TryAcquire(context.Background(), "auction-1")
	require.NoError(t, err)

	mr.FastForward(250 * time.Millisecond)
	require.Eventually(t, func() bool {
		return mr.TTL("lock:auction-1") > 100*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond, "lock TTL was not extended")

	// Operations longer than the TTL still hold the lock.
	mr.FastForward(250 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("lock:auction-1") > 100*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, mr.Exists("lock:auction-1"))

	unlock()
	assert.False(t, mr.Exists("lock:auction-1"))
}

func TestRedisLockUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	_, err := lock.NewRedis(rdb, time.Second).TryAcquire(context.Background(), "auction-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, lock.ErrLockHeld))
}
