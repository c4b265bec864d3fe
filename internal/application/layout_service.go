package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

// LayoutView は座席表と状態別の座席数
type LayoutView struct {
	Layout     *layout.Layout
	PriceTiers []layout.PriceTier
	Counts     seat.Counts
}

// LayoutService は座席表の取得・公開と管理者向けのブロック操作を扱う
type LayoutService struct {
	layouts      layout.Repository
	seats        seat.Repository
	availability *AvailabilityService
	cache        SnapshotCache
	clock        clock.Clock
}

func NewLayoutService(lr layout.Repository, sr seat.Repository, availability *AvailabilityService, cache SnapshotCache, clk clock.Clock) *LayoutService {
	return &LayoutService{layouts: lr, seats: sr, availability: availability, cache: cache, clock: clk}
}

// GetLayout はイベントの公開済み座席表を返す
func (s *LayoutService) GetLayout(ctx context.Context, eventID string) (*LayoutView, error) {
	if eventID == "" {
		return nil, fmt.Errorf("%w: event_id は必須です", ErrInvalidInput)
	}
	l, err := s.layouts.GetPublishedByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	counts, err := s.availability.Counts(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return &LayoutView{Layout: l, PriceTiers: l.TiersInUse(), Counts: counts}, nil
}

// PublishInput は座席表の公開リクエスト
type PublishInput struct {
	Layout *layout.Layout
	// 注文システム側で既に販売済みの座席（seat_uid → 注文参照）
	PreSold map[string]string
}

// Publish は座席表を公開し、座席を実体化する
// disabled 指定の座席は disabled、販売済みの座席は sold として作成する
func (s *LayoutService) Publish(ctx context.Context, in PublishInput) (*layout.Layout, error) {
	l := in.Layout
	if l == nil {
		return nil, fmt.Errorf("%w: layout は必須です", ErrInvalidInput)
	}
	now := s.clock.Now()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if err := l.Publish(now); err != nil {
		if errors.Is(err, layout.ErrLayoutAlreadyPublished) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// 公開済みの seat_uid 集合は変更できないため、同じIDの再公開は拒否する
	if _, err := s.layouts.GetByID(ctx, l.ID); err == nil {
		return nil, layout.ErrLayoutAlreadyPublished
	} else if !errors.Is(err, layout.ErrLayoutNotFound) {
		return nil, fmt.Errorf("座席表取得に失敗: %w", err)
	}
	// イベントごとに公開済みの座席表は1つ
	if _, err := s.layouts.GetPublishedByEventID(ctx, l.EventID); err == nil {
		return nil, layout.ErrLayoutAlreadyPublished
	} else if !errors.Is(err, layout.ErrLayoutNotFound) {
		return nil, fmt.Errorf("座席表取得に失敗: %w", err)
	}

	placed := l.Seats()
	known := make(map[string]bool, len(placed))
	for _, p := range placed {
		known[p.Seat.UID] = true
	}
	for uid, ref := range in.PreSold {
		if !known[uid] {
			return nil, fmt.Errorf("%w: 販売済み座席 %s は座席表にありません", ErrInvalidInput, uid)
		}
		if ref == "" {
			return nil, fmt.Errorf("%w: 販売済み座席 %s の注文参照が空です", ErrInvalidInput, uid)
		}
	}

	seats := make([]*seat.Seat, 0, len(placed))
	for _, p := range placed {
		st := seat.NewSeat(l.ID, p.Seat.UID)
		st.TenantID = l.TenantID
		st.SectionCode = p.SectionCode
		st.RowLabel = p.RowLabel
		st.SeatNumber = p.Seat.Label
		st.PriceTierID = p.Seat.PriceTierID
		st.UpdatedAt = now
		switch ref, sold := in.PreSold[p.Seat.UID]; {
		case sold:
			st.Status = seat.StatusSold
			st.OrderRef = &ref
			st.Version = 1
		case p.Seat.Disabled:
			st.Status = seat.StatusDisabled
		}
		seats = append(seats, st)
	}

	if err := s.materialize(ctx, l, seats); err != nil {
		return nil, err
	}
	invalidateSnapshots(ctx, s.cache, l.ID)

	logger.Info("座席表を公開しました",
		logger.LayoutID(l.ID),
		zap.String("event_id", l.EventID),
		zap.Int("seats", len(seats)),
		zap.Int("pre_sold", len(in.PreSold)),
	)
	return l, nil
}

// materialize は座席と座席表を作成する
// 座席を先に作成し（座席表が見えるのは作成後）、座席表の作成に失敗したら座席を消す
func (s *LayoutService) materialize(ctx context.Context, l *layout.Layout, seats []*seat.Seat) error {
	if m, ok := s.layouts.(LayoutMaterializer); ok {
		return m.CreateWithSeats(ctx, l, seats)
	}
	if err := s.seats.CreateBulk(ctx, seats); err != nil {
		return fmt.Errorf("座席の実体化に失敗: %w", err)
	}
	if err := s.layouts.Create(ctx, l); err != nil {
		if _, derr := s.seats.DeleteByLayout(context.WithoutCancel(ctx), l.ID); derr != nil {
			logger.Error("公開に失敗した座席表の座席を削除できませんでした", logger.LayoutID(l.ID), zap.Error(derr))
		}
		return err
	}
	return nil
}

// BlockSeats は available の座席を管理者ブロックする
func (s *LayoutService) BlockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error) {
	uids, err := s.adminTargets(ctx, layoutID, seatUIDs)
	if err != nil {
		return 0, err
	}
	n, err := s.seats.BlockSeats(ctx, layoutID, uids, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("座席ブロックに失敗: %w", err)
	}
	if n > 0 {
		invalidateSnapshots(ctx, s.cache, layoutID)
	}
	logger.Info("座席をブロックしました", logger.LayoutID(layoutID), zap.Int("count", n))
	return n, nil
}

// UnblockSeats はブロック中の座席を解除する
func (s *LayoutService) UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string) (int, error) {
	uids, err := s.adminTargets(ctx, layoutID, seatUIDs)
	if err != nil {
		return 0, err
	}
	n, err := s.seats.UnblockSeats(ctx, layoutID, uids, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("座席ブロック解除に失敗: %w", err)
	}
	if n > 0 {
		invalidateSnapshots(ctx, s.cache, layoutID)
	}
	logger.Info("座席のブロックを解除しました", logger.LayoutID(layoutID), zap.Int("count", n))
	return n, nil
}

// ListBlocked はブロック中の座席IDを返す
func (s *LayoutService) ListBlocked(ctx context.Context, layoutID string) ([]string, error) {
	if _, err := s.layouts.GetByID(ctx, layoutID); err != nil {
		return nil, err
	}
	seats, err := s.seats.ListBlocked(ctx, layoutID)
	if err != nil {
		return nil, fmt.Errorf("ブロック座席取得に失敗: %w", err)
	}
	uids := make([]string, len(seats))
	for i, st := range seats {
		uids[i] = st.SeatUID
	}
	return uids, nil
}

func (s *LayoutService) adminTargets(ctx context.Context, layoutID string, seatUIDs []string) ([]string, error) {
	uids, err := normalizeSeatUIDs(seatUIDs, 0, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.layouts.GetByID(ctx, layoutID); err != nil {
		return nil, err
	}
	return uids, nil
}
