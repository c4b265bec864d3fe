package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

const snapshotLoadTimeout = 5 * time.Second

// SeatView は座席一覧の1行
type SeatView struct {
	SeatUID     string      `json:"seat_uid"`
	SectionCode string      `json:"section_code"`
	RowLabel    string      `json:"row_label"`
	SeatNumber  string      `json:"seat_number"`
	Status      seat.Status `json:"status"`
	PriceTierID string      `json:"price_tier_id"`
	PriceCents  int64       `json:"price_cents"`
}

// SeatListing は座席一覧と鮮度を表す更新時刻
type SeatListing struct {
	LayoutID  string     `json:"layout_id"`
	Seats     []SeatView `json:"seats"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AvailabilityService は座席の空き状況を返す読み取り側のサービス
// 期限切れのホールドは読み出し時に available として扱う
type AvailabilityService struct {
	layouts  layout.Repository
	seats    seat.Repository
	clock    clock.Clock
	cache    SnapshotCache
	cacheTTL time.Duration
	group    singleflight.Group
}

type AvailabilityOption func(*AvailabilityService)

// WithSnapshotCache はスナップショットキャッシュを有効にする
func WithSnapshotCache(cache SnapshotCache, ttl time.Duration) AvailabilityOption {
	return func(s *AvailabilityService) {
		if cache != nil && ttl > 0 {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

func NewAvailabilityService(lr layout.Repository, sr seat.Repository, clk clock.Clock, opts ...AvailabilityOption) *AvailabilityService {
	s := &AvailabilityService{layouts: lr, seats: sr, clock: clk}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSeats はレイアウトの全座席を状態と価格付きで返す
func (s *AvailabilityService) ListSeats(ctx context.Context, layoutID string) (*SeatListing, error) {
	l, err := s.publishedLayout(ctx, layoutID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx, layoutID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	prices := l.TierPrices()
	listing := &SeatListing{LayoutID: layoutID, Seats: make([]SeatView, 0, len(snap.Seats))}
	for _, st := range snap.Seats {
		if err := st.CheckInvariant(); err != nil {
			logger.Error("座席の状態が不整合です", logger.LayoutID(layoutID), zap.String("seat_uid", st.SeatUID), zap.Error(err))
			return nil, err
		}
		listing.Seats = append(listing.Seats, SeatView{
			SeatUID:     st.SeatUID,
			SectionCode: st.SectionCode,
			RowLabel:    st.RowLabel,
			SeatNumber:  st.SeatNumber,
			Status:      st.EffectiveStatus(now),
			PriceTierID: st.PriceTierID,
			PriceCents:  prices[st.PriceTierID],
		})
		listing.UpdatedAt = latest(listing.UpdatedAt, st.UpdatedAt)
		// 遅延失効で状態が変わった座席は失効時刻を更新時刻とみなす
		if st.IsExpired(now) {
			listing.UpdatedAt = latest(listing.UpdatedAt, *st.HoldExpiresAt)
		}
	}
	return listing, nil
}

// Counts は遅延失効を適用した状態別の座席数を返す
func (s *AvailabilityService) Counts(ctx context.Context, layoutID string) (seat.Counts, error) {
	snap, err := s.Snapshot(ctx, layoutID)
	if err != nil {
		return seat.Counts{}, err
	}
	return seat.CountByStatus(snap.Seats, s.clock.Now()), nil
}

// Snapshot はキャッシュまたはストアから座席スナップショットを取得する
// 同一レイアウトへの同時読み込みは1回にまとめる
func (s *AvailabilityService) Snapshot(ctx context.Context, layoutID string) (*seat.Snapshot, error) {
	if s.cache != nil {
		if snap, err := s.cache.Get(ctx, layoutID); err == nil {
			return snap, nil
		}
	}

	// 共有の読み込みは呼び出し元のキャンセルに引きずられない
	ch := s.group.DoChan(layoutID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
		defer cancel()
		return s.load(loadCtx, layoutID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*seat.Snapshot), nil
	}
}

// load はストアから読み込み、読み込み中に無効化がなければキャッシュへ保存する
func (s *AvailabilityService) load(ctx context.Context, layoutID string) (*seat.Snapshot, error) {
	gen, cacheable := int64(0), false
	if s.cache != nil {
		g, err := s.cache.Generation(ctx, layoutID)
		if err != nil {
			logger.Warn("キャッシュ世代の取得に失敗しました", logger.LayoutID(layoutID), zap.Error(err))
		} else {
			gen, cacheable = g, true
		}
	}

	seats, err := s.seats.ListByLayout(ctx, layoutID)
	if err != nil {
		return nil, fmt.Errorf("座席一覧取得に失敗: %w", err)
	}
	snap := &seat.Snapshot{LayoutID: layoutID, Seats: seats, TakenAt: s.clock.Now(), Generation: gen}
	if cacheable {
		if err := s.cache.Set(ctx, snap, s.cacheTTL); err != nil {
			logger.Warn("座席キャッシュの保存に失敗しました", logger.LayoutID(layoutID), zap.Error(err))
		}
	}
	return snap, nil
}

func (s *AvailabilityService) publishedLayout(ctx context.Context, layoutID string) (*layout.Layout, error) {
	l, err := s.layouts.GetByID(ctx, layoutID)
	if err != nil {
		return nil, err
	}
	if !l.IsPublished() {
		return nil, layout.ErrLayoutNotFound
	}
	return l, nil
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
