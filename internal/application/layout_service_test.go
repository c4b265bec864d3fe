package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/memory"
)

func TestLayoutService_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("座席を実体化しdisabled指定を反映する", func(t *testing.T) {
		env := newTestEnv(t)
		l := env.publish(t)

		assert.Equal(t, layout.StatusPublished, l.Status)
		require.NotNil(t, l.PublishedAt)
		assert.Equal(t, baseTime, *l.PublishedAt)

		listing, err := env.availability.ListSeats(ctx, "layout-1")
		require.NoError(t, err)
		require.Len(t, listing.Seats, 6)
		assert.Equal(t, seat.StatusAvailable, listing.Seats[0].Status)
		assert.Equal(t, "A", listing.Seats[0].SectionCode)
		assert.Equal(t, int64(5000), listing.Seats[0].PriceCents)
		assert.Equal(t, seat.StatusDisabled, listing.Seats[5].Status)
		assert.Equal(t, int64(12000), listing.Seats[5].PriceCents)
	})

	t.Run("販売済み座席はsoldで作成される", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.layoutSvc.Publish(ctx, PublishInput{
			Layout:  testLayout("layout-1", "event-1"),
			PreSold: map[string]string{"A-2": "ORDER-EXT-1"},
		})
		require.NoError(t, err)

		seats, err := env.seats.ListByLayout(ctx, "layout-1")
		require.NoError(t, err)
		assert.Equal(t, seat.StatusSold, seats[1].Status)
		require.NotNil(t, seats[1].OrderRef)
		assert.Equal(t, "ORDER-EXT-1", *seats[1].OrderRef)
		assert.NoError(t, seats[1].CheckInvariant())
	})

	t.Run("座席表にない販売済み座席は拒否", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.layoutSvc.Publish(ctx, PublishInput{
			Layout:  testLayout("layout-1", "event-1"),
			PreSold: map[string]string{"Z-9": "ORDER-1"},
		})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = env.layouts.GetByID(ctx, "layout-1")
		assert.ErrorIs(t, err, layout.ErrLayoutNotFound)
	})

	t.Run("不正な座席表は入力エラー", func(t *testing.T) {
		env := newTestEnv(t)
		l := testLayout("layout-1", "event-1")
		l.Geometry.Sections[0].Rows[0].Seats[1].UID = "A-1"
		_, err := env.layoutSvc.Publish(ctx, PublishInput{Layout: l})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, layout.ErrDuplicateSeatUID)
	})

	t.Run("同じIDの再公開は拒否", func(t *testing.T) {
		env := newTestEnv(t)
		env.publish(t)
		env.hold(t, "session-x", "A-1")

		_, err := env.layoutSvc.Publish(ctx, PublishInput{Layout: testLayout("layout-1", "event-1")})
		assert.ErrorIs(t, err, layout.ErrLayoutAlreadyPublished)
		// 既存の座席状態は保たれる
		assert.Equal(t, seat.StatusHeld, env.status(t, "A-1"))
	})

	t.Run("同じイベントへの別の座席表は拒否", func(t *testing.T) {
		env := newTestEnv(t)
		env.publish(t)
		env.hold(t, "session-x", "A-1")

		_, err := env.layoutSvc.Publish(ctx, PublishInput{Layout: testLayout("layout-2", "event-1")})
		assert.ErrorIs(t, err, layout.ErrLayoutAlreadyPublished)

		view, err := env.layoutSvc.GetLayout(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, "layout-1", view.Layout.ID)
		assert.Equal(t, 1, view.Counts.Held)
		seats, err := env.seats.ListByLayout(ctx, "layout-2")
		require.NoError(t, err)
		assert.Empty(t, seats)
	})

	t.Run("座席表の作成に失敗したら作成済みの座席を消す", func(t *testing.T) {
		env := newTestEnv(t)
		env.publish(t)
		// 事前確認をすり抜けた同時公開を再現する
		racing := &eventLookupMissRepository{LayoutRepository: env.layouts}
		svc := NewLayoutService(racing, env.seats, env.availability, nil, env.clock)

		_, err := svc.Publish(ctx, PublishInput{Layout: testLayout("layout-2", "event-1")})
		assert.ErrorIs(t, err, layout.ErrLayoutAlreadyPublished)
		seats, err := env.seats.ListByLayout(ctx, "layout-2")
		require.NoError(t, err)
		assert.Empty(t, seats)
		assert.Equal(t, seat.StatusAvailable, env.status(t, "A-1"))
	})

	t.Run("一括作成できるストアでは座席と座席表をまとめて作成する", func(t *testing.T) {
		env := newTestEnv(t)
		store := &materializingLayoutRepository{LayoutRepository: env.layouts}
		svc := NewLayoutService(store, env.seats, env.availability, nil, env.clock)

		_, err := svc.Publish(ctx, PublishInput{Layout: testLayout("layout-1", "event-1")})
		require.NoError(t, err)
		assert.Equal(t, 6, store.seats)
		// 一括作成側に任せるため座席ストアには書かない
		seats, err := env.seats.ListByLayout(ctx, "layout-1")
		require.NoError(t, err)
		assert.Empty(t, seats)
	})

	t.Run("公開時にキャッシュを無効化する", func(t *testing.T) {
		env := newTestEnv(t)
		cache := new(MockSnapshotCache)
		cache.On("Invalidate", mock.Anything, []string{"layout-1"}).Return(nil).Once()
		svc := NewLayoutService(env.layouts, env.seats, env.availability, cache, env.clock)

		_, err := svc.Publish(ctx, PublishInput{Layout: testLayout("layout-1", "event-1")})
		require.NoError(t, err)
		cache.AssertExpectations(t)
	})
}

func TestLayoutService_GetLayout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.publish(t)
	env.hold(t, "session-x", "A-1", "A-2")

	view, err := env.layoutSvc.GetLayout(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, "layout-1", view.Layout.ID)
	assert.Equal(t, seat.Counts{Total: 6, Available: 3, Held: 2, Disabled: 1}, view.Counts)
	// 使われていない価格帯は返さない
	require.Len(t, view.PriceTiers, 2)
	assert.Equal(t, "std", view.PriceTiers[0].ID)
	assert.Equal(t, "vip", view.PriceTiers[1].ID)

	t.Run("期限切れホールドはavailableとして数える", func(t *testing.T) {
		env.clock.Advance(env.holds.HoldTTL())
		view, err := env.layoutSvc.GetLayout(ctx, "event-1")
		require.NoError(t, err)
		assert.Equal(t, 5, view.Counts.Available)
		assert.Equal(t, 0, view.Counts.Held)
	})

	t.Run("未公開のイベントは見つからない", func(t *testing.T) {
		_, err := env.layoutSvc.GetLayout(ctx, "event-unknown")
		assert.ErrorIs(t, err, layout.ErrLayoutNotFound)
	})

	t.Run("イベントID未指定は入力エラー", func(t *testing.T) {
		_, err := env.layoutSvc.GetLayout(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestLayoutService_BlockUnblock(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.publish(t)
	env.hold(t, "session-x", "A-1")

	n, err := env.layoutSvc.BlockSeats(ctx, "layout-1", []string{"A-1", "A-2", "A-3", "B-1"})
	require.NoError(t, err)
	// ホールド中・disabled の座席はブロックしない
	assert.Equal(t, 2, n)

	blocked, err := env.layoutSvc.ListBlocked(ctx, "layout-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A-2", "A-3"}, blocked)

	_, err = env.holds.Hold(ctx, HoldInput{LayoutID: "layout-1", SessionID: "session-y", SeatUIDs: []string{"A-2"}})
	var conflict *HoldConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, seat.ReasonBlocked, conflict.Result.Failed[0].Reason)

	n, err = env.layoutSvc.UnblockSeats(ctx, "layout-1", []string{"A-2"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, seat.StatusAvailable, env.status(t, "A-2"))

	t.Run("存在しないレイアウトは見つからない", func(t *testing.T) {
		_, err := env.layoutSvc.BlockSeats(ctx, "layout-unknown", []string{"A-1"})
		assert.ErrorIs(t, err, layout.ErrLayoutNotFound)
	})

	t.Run("座席未指定は入力エラー", func(t *testing.T) {
		_, err := env.layoutSvc.UnblockSeats(ctx, "layout-1", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

// eventLookupMissRepository はイベントからの検索を常にミスさせる
type eventLookupMissRepository struct {
	*memory.LayoutRepository
}

func (r *eventLookupMissRepository) GetPublishedByEventID(ctx context.Context, eventID string) (*layout.Layout, error) {
	return nil, layout.ErrLayoutNotFound
}

// materializingLayoutRepository は CreateWithSeats の呼び出しを記録する
type materializingLayoutRepository struct {
	*memory.LayoutRepository
	seats int
}

func (r *materializingLayoutRepository) CreateWithSeats(ctx context.Context, l *layout.Layout, seats []*seat.Seat) error {
	r.seats = len(seats)
	return r.LayoutRepository.Create(ctx, l)
}
