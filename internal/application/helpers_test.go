package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/memory"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// === Mock implementations ===

// MockSnapshotCache implements SnapshotCache
type MockSnapshotCache struct {
	mock.Mock
}

func (m *MockSnapshotCache) Get(ctx context.Context, layoutID string) (*seat.Snapshot, error) {
	args := m.Called(ctx, layoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*seat.Snapshot), args.Error(1)
}

func (m *MockSnapshotCache) Generation(ctx context.Context, layoutID string) (int64, error) {
	args := m.Called(ctx, layoutID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSnapshotCache) Set(ctx context.Context, snap *seat.Snapshot, ttl time.Duration) error {
	args := m.Called(ctx, snap, ttl)
	return args.Error(0)
}

func (m *MockSnapshotCache) Invalidate(ctx context.Context, layoutIDs ...string) error {
	args := m.Called(ctx, layoutIDs)
	return args.Error(0)
}

// MockSoldPublisher implements SoldPublisher
type MockSoldPublisher struct {
	mock.Mock
}

func (m *MockSoldPublisher) PublishSold(ctx context.Context, event seat.SoldEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// testEnv はメモリストアで組み立てたサービス一式
type testEnv struct {
	clock        *clock.Manual
	layouts      *memory.LayoutRepository
	seats        *memory.SeatRepository
	records      *memory.IdempotencyRepository
	availability *AvailabilityService
	layoutSvc    *LayoutService
	holds        *HoldService
	confirm      *ConfirmationService
}

func newTestEnv(t *testing.T, holdOpts ...HoldServiceOption) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:   clock.NewManual(baseTime),
		layouts: memory.NewLayoutRepository(),
		seats:   memory.NewSeatRepository(),
		records: memory.NewIdempotencyRepository(),
	}
	env.availability = NewAvailabilityService(env.layouts, env.seats, env.clock)
	env.layoutSvc = NewLayoutService(env.layouts, env.seats, env.availability, nil, env.clock)
	env.holds = NewHoldService(env.layouts, env.seats, env.clock, holdOpts...)
	env.confirm = NewConfirmationService(env.layouts, env.seats, env.records, env.clock)
	return env
}

// testLayout は A-1〜A-5（std）と車椅子席 B-1（disabled）を持つ座席表
func testLayout(id, eventID string) *layout.Layout {
	row := layout.Row{Label: "1"}
	for _, uid := range []string{"A-1", "A-2", "A-3", "A-4", "A-5"} {
		row.Seats = append(row.Seats, layout.SeatGeometry{UID: uid, Label: uid[2:], PriceTierID: "std"})
	}
	return &layout.Layout{
		ID:      id,
		EventID: eventID,
		Name:    "メインホール",
		Status:  layout.StatusDraft,
		Geometry: layout.Geometry{
			Canvas: layout.Canvas{Width: 800, Height: 600},
			Sections: []layout.Section{
				{Code: "A", Name: "アリーナ", Rows: []layout.Row{row}},
				{Code: "B", Name: "バルコニー", Rows: []layout.Row{{Label: "1", Seats: []layout.SeatGeometry{
					{UID: "B-1", Label: "1", PriceTierID: "vip", Disabled: true},
				}}}},
			},
		},
		PriceTiers: []layout.PriceTier{
			{ID: "std", Name: "一般", PriceCents: 5000},
			{ID: "vip", Name: "VIP", PriceCents: 12000},
			{ID: "unused", Name: "未使用", PriceCents: 1},
		},
	}
}

func (env *testEnv) publish(t *testing.T) *layout.Layout {
	t.Helper()
	l, err := env.layoutSvc.Publish(context.Background(), PublishInput{Layout: testLayout("layout-1", "event-1")})
	require.NoError(t, err)
	return l
}

func (env *testEnv) hold(t *testing.T, session string, uids ...string) *HoldResult {
	t.Helper()
	res, err := env.holds.Hold(context.Background(), HoldInput{LayoutID: "layout-1", SessionID: session, SeatUIDs: uids})
	require.NoError(t, err)
	return res
}

func (env *testEnv) status(t *testing.T, uid string) seat.Status {
	t.Helper()
	listing, err := env.availability.ListSeats(context.Background(), "layout-1")
	require.NoError(t, err)
	for _, v := range listing.Seats {
		if v.SeatUID == uid {
			return v.Status
		}
	}
	t.Fatalf("座席 %s がありません", uid)
	return ""
}
