package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKey = "scout:scheduler:lock"

// redisLock provides best-effort mutual exclusion across replicas. The
// in-process guard already serializes runs within one process; this only
// prevents two replicas from running the same window concurrently.
type redisLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func newRedisLock(rdb *redis.Client, ttl time.Duration) *redisLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisLock{rdb: rdb, ttl: ttl}
}

// TryLock attempts to take the lock. The returned release func is safe to call
// when acquisition failed.
func (l *redisLock) TryLock(ctx context.Context) (bool, func()) {
	if l == nil || l.rdb == nil {
		return true, func() {}
	}
	ok, err := l.rdb.SetNX(ctx, lockKey, "1", l.ttl).Result()
	if err != nil {
		// redis being down must not stop the scheduler
		return true, func() {}
	}
	if !ok {
		return false, func() {}
	}
	return true, func() { l.rdb.Del(context.Background(), lockKey) }
}
