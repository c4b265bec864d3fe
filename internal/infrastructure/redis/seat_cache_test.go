package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

func TestSeatSnapshotCache(t *testing.T) {
	mr, client := setupMiniredis(t)
	cache := NewSeatSnapshotCache(client)
	ctx := context.Background()
	takenAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := takenAt.Add(10 * time.Minute)
	session := "session-x"

	snap := &seat.Snapshot{
		LayoutID: "layout-1",
		TakenAt:  takenAt,
		Seats: []*seat.Seat{
			{LayoutID: "layout-1", SeatUID: "A-1", Status: seat.StatusAvailable},
			{LayoutID: "layout-1", SeatUID: "A-2", Status: seat.StatusHeld, HolderSession: &session, HoldExpiresAt: &expires},
		},
	}

	t.Run("キャッシュミス時はErrCacheMissを返す", func(t *testing.T) {
		_, err := cache.Get(ctx, "layout-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("キャッシュにセットした値を取得できる", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, snap, 30*time.Second))

		got, err := cache.Get(ctx, "layout-1")
		require.NoError(t, err)
		assert.Equal(t, takenAt, got.TakenAt)
		require.Len(t, got.Seats, 2)
		assert.Equal(t, seat.StatusHeld, got.Seats[1].Status)
		assert.Equal(t, "session-x", *got.Seats[1].HolderSession)
		assert.True(t, expires.Equal(*got.Seats[1].HoldExpiresAt))
	})

	t.Run("TTL経過後はミスになる", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, snap, time.Second))
		mr.FastForward(2 * time.Second)

		_, err := cache.Get(ctx, "layout-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})

	t.Run("無効化できる", func(t *testing.T) {
		require.NoError(t, cache.Set(ctx, snap, time.Minute))
		require.NoError(t, cache.Invalidate(ctx, "layout-1", "layout-2"))

		_, err := cache.Get(ctx, "layout-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
		assert.NoError(t, cache.Invalidate(ctx))
	})

	t.Run("読み込み中に無効化されたスナップショットは保存しない", func(t *testing.T) {
		gen, err := cache.Generation(ctx, "layout-4")
		require.NoError(t, err)
		assert.Equal(t, int64(0), gen)

		stale := &seat.Snapshot{LayoutID: "layout-4", TakenAt: takenAt, Generation: gen}
		require.NoError(t, cache.Invalidate(ctx, "layout-4"))

		require.NoError(t, cache.Set(ctx, stale, time.Minute))
		_, err = cache.Get(ctx, "layout-4")
		assert.ErrorIs(t, err, ErrCacheMiss)

		gen, err = cache.Generation(ctx, "layout-4")
		require.NoError(t, err)
		assert.Equal(t, int64(1), gen)
		fresh := &seat.Snapshot{LayoutID: "layout-4", TakenAt: takenAt, Generation: gen}
		require.NoError(t, cache.Set(ctx, fresh, time.Minute))
		got, err := cache.Get(ctx, "layout-4")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Generation)
	})

	t.Run("壊れたエントリはミス扱い", func(t *testing.T) {
		require.NoError(t, mr.Set("seats:snapshot:layout-3", "{not json"))
		_, err := cache.Get(ctx, "layout-3")
		assert.ErrorIs(t, err, ErrCacheMiss)
	})
}
