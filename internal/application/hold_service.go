package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/metrics"
)

const (
	defaultHoldTTL     = 10 * time.Minute
	defaultCheckoutTTL = 15 * time.Minute
	defaultMaxSeats    = 10
)

// HoldService は座席のホールドの付与・解放・失効を扱う
type HoldService struct {
	layouts        layout.Repository
	seats          seat.Repository
	clock          clock.Clock
	cache          SnapshotCache
	metrics        *metrics.Metrics
	holdTTL        time.Duration
	checkoutTTL    time.Duration
	maxSeats       int
	extendOnRehold bool
}

type HoldServiceOption func(*HoldService)

// WithHoldTTL は新規ホールドの有効期間を変更する
func WithHoldTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithCheckoutTTL は決済開始時に延長する期間を変更する
func WithCheckoutTTL(d time.Duration) HoldServiceOption {
	return func(s *HoldService) {
		if d > 0 {
			s.checkoutTTL = d
		}
	}
}

// WithMaxSeats は1回のホールドで指定できる座席数の上限を変更する
func WithMaxSeats(n int) HoldServiceOption {
	return func(s *HoldService) {
		if n > 0 {
			s.maxSeats = n
		}
	}
}

// WithExtendOnRehold は自セッションの再ホールドで期限を延長するかを設定する
func WithExtendOnRehold(extend bool) HoldServiceOption {
	return func(s *HoldService) { s.extendOnRehold = extend }
}

// WithHoldCache は座席変更時に無効化するキャッシュを設定する
func WithHoldCache(cache SnapshotCache) HoldServiceOption {
	return func(s *HoldService) { s.cache = cache }
}

// WithHoldMetrics はメトリクスの記録先を設定する
func WithHoldMetrics(m *metrics.Metrics) HoldServiceOption {
	return func(s *HoldService) { s.metrics = m }
}

func NewHoldService(lr layout.Repository, sr seat.Repository, clk clock.Clock, opts ...HoldServiceOption) *HoldService {
	s := &HoldService{
		layouts:     lr,
		seats:       sr,
		clock:       clk,
		holdTTL:     defaultHoldTTL,
		checkoutTTL: defaultCheckoutTTL,
		maxSeats:    defaultMaxSeats,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HoldTTL は新規ホールドの有効期間を返す
func (s *HoldService) HoldTTL() time.Duration { return s.holdTTL }

type HoldInput struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string
}

// HoldResult はホールド結果
// Held には今回付与した座席と既に自セッションが保持していた座席の両方を含む
type HoldResult struct {
	LayoutID  string         `json:"layout_id"`
	Held      []string       `json:"held"`
	Failed    []seat.Failure `json:"failed"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

// Hold は座席ごとに available → held を試みる
// 1席も確保できなかった場合は HoldConflictError を返す
func (s *HoldService) Hold(ctx context.Context, in HoldInput) (*HoldResult, error) {
	if err := requireSession(in.SessionID); err != nil {
		return nil, err
	}
	uids, err := normalizeSeatUIDs(in.SeatUIDs, s.maxSeats, true)
	if err != nil {
		s.metrics.IncHold("rejected")
		return nil, err
	}
	l, err := s.layouts.GetByID(ctx, in.LayoutID)
	if err != nil {
		return nil, err
	}
	if !l.IsPublished() {
		return nil, layout.ErrLayoutNotFound
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.holdTTL)
	outcomes, err := s.seats.HoldSeats(ctx, seat.HoldRequest{
		LayoutID:    in.LayoutID,
		SessionID:   in.SessionID,
		SeatUIDs:    uids,
		ExpiresAt:   expiresAt,
		Now:         now,
		ExtendOwned: s.extendOnRehold,
	})
	if err != nil {
		s.metrics.IncHold("error")
		return nil, fmt.Errorf("座席ホールドに失敗: %w", err)
	}

	result := &HoldResult{LayoutID: in.LayoutID, Held: []string{}, Failed: []seat.Failure{}}
	changed := false
	var earliestOwned time.Time
	for _, o := range outcomes {
		switch o.Result {
		case seat.HoldGranted, seat.HoldExtended:
			changed = true
			result.Held = append(result.Held, o.SeatUID)
		case seat.HoldAlreadyOwned:
			result.Held = append(result.Held, o.SeatUID)
			if earliestOwned.IsZero() || o.ExpiresAt.Before(earliestOwned) {
				earliestOwned = o.ExpiresAt
			}
		default:
			result.Failed = append(result.Failed, seat.Failure{SeatUID: o.SeatUID, Reason: o.Reason})
		}
		s.metrics.IncSeatOutcome(outcomeLabel(o), 1)
	}

	// 今回の付与分は同じ期限を共有する。既存分のみなら最も早い期限を返す
	switch {
	case changed:
		result.ExpiresAt = &expiresAt
	case !earliestOwned.IsZero():
		result.ExpiresAt = &earliestOwned
	}

	if changed {
		invalidateSnapshots(ctx, s.cache, in.LayoutID)
	}

	fields := []zap.Field{
		logger.LayoutID(in.LayoutID),
		logger.SessionID(in.SessionID),
		zap.Int("held", len(result.Held)),
		zap.Int("failed", len(result.Failed)),
	}
	if len(result.Held) == 0 {
		s.metrics.IncHold("conflict")
		logger.Info("座席を確保できませんでした", fields...)
		return result, &HoldConflictError{Result: result}
	}
	if len(result.Failed) > 0 {
		s.metrics.IncHold("partial")
	} else {
		s.metrics.IncHold("held")
	}
	logger.Debug("座席をホールドしました", fields...)
	return result, nil
}

func outcomeLabel(o seat.HoldOutcome) string {
	switch o.Result {
	case seat.HoldGranted:
		return "held"
	case seat.HoldExtended, seat.HoldAlreadyOwned:
		return "already_held"
	}
	if o.Reason == seat.ReasonHeld {
		return "held_by_other"
	}
	return string(o.Reason)
}

type ReleaseInput struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string // 空ならセッションの全ホールド
}

// Release は自セッションのホールドを解放し、解放数を返す
// 他セッションのホールドや利用可能な座席は黙って読み飛ばす
func (s *HoldService) Release(ctx context.Context, in ReleaseInput) (int, error) {
	if err := requireSession(in.SessionID); err != nil {
		return 0, err
	}
	uids, err := normalizeSeatUIDs(in.SeatUIDs, 0, false)
	if err != nil {
		return 0, err
	}
	n, err := s.seats.ReleaseSeats(ctx, in.LayoutID, in.SessionID, uids, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("座席解放に失敗: %w", err)
	}
	if n > 0 {
		invalidateSnapshots(ctx, s.cache, in.LayoutID)
	}
	s.metrics.AddReleased(n)
	logger.Debug("座席を解放しました", logger.LayoutID(in.LayoutID), logger.SessionID(in.SessionID), zap.Int("count", n))
	return n, nil
}

// HoldView はセッションの有効なホールド1件
type HoldView struct {
	LayoutID         string    `json:"layout_id"`
	SeatUID          string    `json:"seat_uid"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// ListHolds はセッションの有効なホールドを返す（期限切れは含めない）
func (s *HoldService) ListHolds(ctx context.Context, sessionID string) ([]HoldView, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	seats, err := s.seats.ListHeldBySession(ctx, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("ホールド一覧取得に失敗: %w", err)
	}
	views := make([]HoldView, 0, len(seats))
	for _, st := range seats {
		if !st.IsHeldBy(sessionID, now) {
			continue
		}
		if err := st.CheckInvariant(); err != nil {
			logger.Error("座席の状態が不整合です", logger.LayoutID(st.LayoutID), zap.String("seat_uid", st.SeatUID), zap.Error(err))
			return nil, err
		}
		views = append(views, HoldView{
			LayoutID:         st.LayoutID,
			SeatUID:          st.SeatUID,
			ExpiresAt:        *st.HoldExpiresAt,
			RemainingSeconds: remainingSeconds(*st.HoldExpiresAt, now),
		})
	}
	return views, nil
}

func remainingSeconds(expiresAt, now time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Seconds()))
}

type ExtendInput struct {
	LayoutID  string
	SessionID string
	SeatUIDs  []string // 空ならレイアウト内の全ホールド
}

type ExtendResult struct {
	ExtendedCount int       `json:"extended_count"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ExtendHolds は決済開始時に自セッションの有効なホールドを延長する
func (s *HoldService) ExtendHolds(ctx context.Context, in ExtendInput) (*ExtendResult, error) {
	if err := requireSession(in.SessionID); err != nil {
		return nil, err
	}
	uids, err := normalizeSeatUIDs(in.SeatUIDs, 0, false)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.checkoutTTL)
	n, err := s.seats.ExtendHolds(ctx, in.LayoutID, in.SessionID, uids, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("ホールド延長に失敗: %w", err)
	}
	if n > 0 {
		invalidateSnapshots(ctx, s.cache, in.LayoutID)
	}
	logger.Info("ホールドを延長しました", logger.LayoutID(in.LayoutID), logger.SessionID(in.SessionID), zap.Int("count", n))
	return &ExtendResult{ExtendedCount: n, ExpiresAt: expiresAt}, nil
}

// ExpireHolds は期限切れのホールドを最大 limit 件回収する
func (s *HoldService) ExpireHolds(ctx context.Context, limit int) (int, error) {
	keys, err := s.seats.ExpireHolds(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("期限切れホールドの回収に失敗: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	seen := make(map[string]bool)
	var layoutIDs []string
	for _, k := range keys {
		if !seen[k.LayoutID] {
			seen[k.LayoutID] = true
			layoutIDs = append(layoutIDs, k.LayoutID)
		}
	}
	invalidateSnapshots(ctx, s.cache, layoutIDs...)
	s.metrics.AddSwept(len(keys))
	return len(keys), nil
}
