// Package lock provides a Redis-backed distributed lock used to serialize
// stock operations per company when the store cannot provide transactional
// isolation itself (the REST collaborator path).
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"marmora/internal/core/apperror"
	"marmora/pkg/logger"
)

// Config holds locker tuning.
type Config struct {
	// TTL is the lock lifetime. Must exceed the longest stock operation,
	// a crashed holder releases the company automatically after TTL.
	TTL time.Duration

	// RetryInterval and RetryCount control how long a caller waits for a
	// busy company before giving up.
	RetryInterval time.Duration
	RetryCount    int
}

// DefaultConfig returns locker defaults.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		RetryCount:    50,
	}
}

// RedisLocker implements stock.Locker on top of redislock.
type RedisLocker struct {
	locker *redislock.Client
	cfg    Config
}

// NewRedisLocker creates a locker over an existing Redis client.
func NewRedisLocker(client redis.UniversalClient, cfg Config) *RedisLocker {
	if cfg.TTL == 0 {
		cfg = DefaultConfig()
	}
	return &RedisLocker{
		locker: redislock.New(client),
		cfg:    cfg,
	}
}

// WithLock obtains the named lock, runs fn, and releases the lock.
// A lock that cannot be obtained within the retry window surfaces as a
// LOCK_NOT_ACQUIRED error so HTTP callers get a 423 instead of blocking.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(
			redislock.LinearBackoff(l.cfg.RetryInterval), l.cfg.RetryCount),
	}

	lock, err := l.locker.Obtain(ctx, key, l.cfg.TTL, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return apperror.NewLockNotAcquired(key)
	}
	if err != nil {
		return apperror.NewStore("obtain lock", err)
	}
	defer func() {
		if releaseErr := lock.Release(context.WithoutCancel(ctx)); releaseErr != nil &&
			!errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logger.Warn(ctx, "failed to release lock",
				"key", key,
				"error", releaseErr,
			)
		}
	}()

	return fn(ctx)
}
