package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marmora/internal/core/apperror"
	"marmora/internal/infrastructure/lock"
)

func newLocker(t *testing.T, cfg lock.Config) *lock.RedisLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lock.NewRedisLocker(client, cfg)
}

func TestWithLock_RunsFunction(t *testing.T) {
	locker := newLocker(t, lock.DefaultConfig())

	ran := false
	err := locker.WithLock(context.Background(), "stock:company:a", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWithLock_Excludes(t *testing.T) {
	cfg := lock.Config{
		TTL:           5 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		RetryCount:    2,
	}
	locker := newLocker(t, cfg)

	const key = "stock:company:b"
	held := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = locker.WithLock(context.Background(), key, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		t.Error("second caller entered the critical section while lock was held")
		return nil
	})
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeLockNotAcquired, appErr.Code)

	close(release)
	wg.Wait()

	// Released, a new caller acquires immediately.
	require.NoError(t, locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		return nil
	}))
}

func TestWithLock_ReleasedAfterError(t *testing.T) {
	locker := newLocker(t, lock.DefaultConfig())

	const key = "stock:company:c"
	wantErr := apperror.NewValidation("bad input")
	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// The lock must not stay held after the callback fails.
	require.NoError(t, locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		return nil
	}))
}

func TestWithLock_DifferentKeysIndependent(t *testing.T) {
	cfg := lock.Config{
		TTL:           5 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		RetryCount:    1,
	}
	locker := newLocker(t, cfg)

	err := locker.WithLock(context.Background(), "stock:company:x", func(ctx context.Context) error {
		// Another company is not blocked by this one.
		return locker.WithLock(ctx, "stock:company:y", func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}
