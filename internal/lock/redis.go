package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock key only if it still holds the caller's token,
// so an expired holder cannot release someone else's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua extends the TTL only while the key still holds the caller's token.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// Redis is a Locker built on SET NX with a TTL and a Lua conditional unlock.
// The TTL bounds how long a crashed replica can block the auction; a live
// holder keeps extending it every ttl/3 until it unlocks.
type Redis struct {
	rdb      *redis.Client
	ttl      time.Duration
	unlockSc *redis.Script
	renewSc  *redis.Script
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		rdb:      rdb,
		ttl:      ttl,
		unlockSc: redis.NewScript(unlockLua),
		renewSc:  redis.NewScript(renewLua),
	}
}

func lockKey(key string) string { return "lock:" + key }

func (r *Redis) TryAcquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lockKey(key)

	ok, err := r.rdb.SetNX(ctx, lk, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(lk, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Background context so unlock succeeds after the request is cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.unlockSc.Run(unlockCtx, r.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// keepAlive renews the lock until stop is closed or the token is lost.
func (r *Redis) keepAlive(lk, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := r.renewSc.Run(ctx, r.rdb, []string{lk}, token, r.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}
