package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLockManager_AcquireLock(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	manager := NewLockManager(client)

	t.Run("ロックを取得できる", func(t *testing.T) {
		lock, err := manager.AcquireLock(ctx, "test-key-1", 5*time.Second)
		require.NoError(t, err)
		require.NotNil(t, lock)
		assert.True(t, mr.Exists("lock:test-key-1"))
		require.NoError(t, lock.Release(ctx))
	})

	t.Run("同じキーのロックは取得できない", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "test-key-2", 5*time.Second)
		require.NoError(t, err)
		defer lock1.Release(ctx)

		lock2, err := manager.AcquireLock(ctx, "test-key-2", 5*time.Second)
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		assert.Nil(t, lock2)
	})

	t.Run("解放後は再取得できる", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "test-key-3", 5*time.Second)
		require.NoError(t, err)
		require.NoError(t, lock1.Release(ctx))

		lock2, err := manager.AcquireLock(ctx, "test-key-3", 5*time.Second)
		require.NoError(t, err)
		defer lock2.Release(ctx)
	})

	t.Run("TTL経過後は他の所有者が取得でき、元の所有者は解放できない", func(t *testing.T) {
		lock1, err := manager.AcquireLock(ctx, "test-key-4", time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		lock2, err := manager.AcquireLock(ctx, "test-key-4", 5*time.Second)
		require.NoError(t, err)
		assert.ErrorIs(t, lock1.Release(ctx), ErrLockNotOwned)
		require.NoError(t, lock2.Release(ctx))
	})
}

func TestDistributedLock_Extend(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	manager := NewLockManager(client)

	lock, err := manager.AcquireLock(ctx, "extend-key", time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Extend(ctx, 10*time.Second))
	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists("lock:extend-key"))

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Extend(ctx, time.Second), ErrLockNotOwned)
}

func TestLockManager_WithLock(t *testing.T) {
	mr, client := setupMiniredis(t)
	ctx := context.Background()
	manager := NewLockManager(client)

	t.Run("取得できれば実行して解放する", func(t *testing.T) {
		called := false
		ran, err := manager.WithLock(ctx, "sweeper", time.Minute, func(ctx context.Context) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
		assert.True(t, called)
		assert.False(t, mr.Exists("lock:sweeper"))
	})

	t.Run("保持中なら実行しない", func(t *testing.T) {
		held, err := manager.AcquireLock(ctx, "sweeper", time.Minute)
		require.NoError(t, err)
		defer held.Release(ctx)

		ran, err := manager.WithLock(ctx, "sweeper", time.Minute, func(ctx context.Context) error {
			t.Fatal("呼ばれてはいけない")
			return nil
		})
		require.NoError(t, err)
		assert.False(t, ran)
	})

	t.Run("fn のエラーを返す", func(t *testing.T) {
		boom := errors.New("boom")
		ran, err := manager.WithLock(ctx, "sweeper-err", time.Minute, func(ctx context.Context) error { return boom })
		assert.True(t, ran)
		assert.ErrorIs(t, err, boom)
		assert.False(t, mr.Exists("lock:sweeper-err"))
	})
}
