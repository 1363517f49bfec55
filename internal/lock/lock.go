// Package lock provides the per-auction critical section shared by every
// replica serving the same auction.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockHeld is returned by TryAcquire when another holder owns the lock.
var ErrLockHeld = errors.New("lock: held by another holder")

// Locker hands out exclusive locks keyed by name. The returned unlock
// function is safe to call more than once.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (unlock func(), err error)
}

// Acquire retries TryAcquire every interval until it succeeds, fails with an
// error other than ErrLockHeld, or ctx is done.
func Acquire(ctx context.Context, l Locker, key string, interval time.Duration) (func(), error) {
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		unlock, err := l.TryAcquire(ctx, key)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: acquire %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Local is an in-process Locker for single-replica deployments.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

func (l *Local) TryAcquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, ErrLockHeld
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
