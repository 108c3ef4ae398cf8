package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "reservation:lock:"

// releaseScript deletes the key only while it still carries our token, so
// an expired lease taken over by another holder is never released.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker holds keys as Redis leases, serializing every instance that
// shares the Redis server.
type RedisLocker struct {
	rdb   redis.UniversalClient
	wait  time.Duration
	ttl   time.Duration
	retry time.Duration
}

// NewRedisLocker creates a locker whose leases expire after ttl and whose
// Acquire gives up after wait.
func NewRedisLocker(rdb redis.UniversalClient, wait, ttl time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, wait: wait, ttl: ttl, retry: 10 * time.Millisecond}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (Release, error) {
	keys = normalize(keys)
	waitCtx, cancel := withWait(ctx, l.wait)
	defer cancel()

	token := uuid.NewString()
	held := make([]string, 0, len(keys))
	release := func() {
		// The caller's context may already be done; release independently.
		relCtx, relCancel := context.WithTimeout(context.Background(), time.Second)
		defer relCancel()
		for i := len(held) - 1; i >= 0; i-- {
			releaseScript.Run(relCtx, l.rdb, []string{redisKeyPrefix + held[i]}, token)
		}
		held = held[:0]
	}

	for _, key := range keys {
		if err := l.take(waitCtx, key, token); err != nil {
			release()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		held = append(held, key)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) take(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, redisKeyPrefix+key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ErrNotAcquired
		}
	}
}
