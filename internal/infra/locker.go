package infra

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisLocker serializes work on one entity across API instances. The row
// locks taken inside each transaction remain the source of truth, so a lock
// that cannot be obtained is logged and the caller proceeds without it.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker returns a locker whose locks expire after ttl. Callers wait
// at most ttl for a held lock before proceeding unlocked.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, wait: ttl}
}

// Lock obtains key and returns its release function; release is never nil.
func (l *RedisLocker) Lock(ctx context.Context, key string) func() {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	lock, err := l.client.Obtain(waitCtx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), int(l.wait/(50*time.Millisecond))),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		log.Warn().Str("key", key).Msg("lock: could not obtain redis lock; proceeding without it")
		return func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("lock: error obtaining redis lock; proceeding without it")
		return func() {}
	}

	return func() {
		// The caller's context may already be done once the work finishes.
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Str("key", key).Msg("lock: release failed")
		}
	}
}
