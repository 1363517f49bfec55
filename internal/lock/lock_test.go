package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/auction-engine/internal/lock"
)

func TestLocalExclusive(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	unlock, err := l.TryAcquire(ctx, "auction-1")
	require.NoError(t, err)

	_, err = l.TryAcquire(ctx, "auction-1")
	assert.True(t, errors.Is(err, lock.ErrLockHeld))

	other, err := l.TryAcquire(ctx, "auction-2")
	require.NoError(t, err, "different keys do not contend")
	other()

	unlock()
	unlock() // idempotent

	again, err := l.TryAcquire(ctx, "auction-1")
	require.NoError(t, err)
	again()
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	unlock, err := l.TryAcquire(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	got, err := lock.Acquire(ctx, l, "k", 5*time.Millisecond)
	require.NoError(t, err)
	got()
}

func TestAcquireHonoursContext(t *testing.T) {
	l := lock.NewLocal()
	_, err := l.TryAcquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(ctx, l, "k", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcquireSerializesCriticalSection(t *testing.T) {
	l := lock.NewLocal()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lock.Acquire(ctx, l, "k", time.Millisecond)
			if err != nil {
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
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
