package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/domain/idempotency"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/metrics"
)

const (
	maxOrderRefLength       = 128
	maxIdempotencyKeyLength = 128
	publishTimeout          = 3 * time.Second
)

// ConfirmationService はホールド中の座席を販売済みに確定する
// 冪等キーを先に確保してから座席を更新するため、同じキーの同時リクエストは1回しか実行されない
type ConfirmationService struct {
	layouts   layout.Repository
	seats     seat.Repository
	records   idempotency.Repository
	clock     clock.Clock
	cache     SnapshotCache
	publisher SoldPublisher
	metrics   *metrics.Metrics
}

type ConfirmationOption func(*ConfirmationService)

// WithConfirmCache は座席変更時に無効化するキャッシュを設定する
func WithConfirmCache(cache SnapshotCache) ConfirmationOption {
	return func(s *ConfirmationService) { s.cache = cache }
}

// WithSoldPublisher は販売確定イベントの発行先を設定する
func WithSoldPublisher(p SoldPublisher) ConfirmationOption {
	return func(s *ConfirmationService) { s.publisher = p }
}

// WithConfirmMetrics はメトリクスの記録先を設定する
func WithConfirmMetrics(m *metrics.Metrics) ConfirmationOption {
	return func(s *ConfirmationService) { s.metrics = m }
}

func NewConfirmationService(lr layout.Repository, sr seat.Repository, ir idempotency.Repository, clk clock.Clock, opts ...ConfirmationOption) *ConfirmationService {
	s := &ConfirmationService{layouts: lr, seats: sr, records: ir, clock: clk}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ConfirmInput struct {
	LayoutID       string
	SessionID      string
	SeatUIDs       []string
	OrderRef       string
	IdempotencyKey string
}

// ConfirmResult はクライアントへ返す確定結果
type ConfirmResult struct {
	Success        bool           `json:"success"`
	ConfirmedCount int            `json:"confirmed_count"`
	Failed         []seat.Failure `json:"failed,omitempty"`
}

// ConfirmOutcome は確定結果とそのエンコード済みペイロード
// 再送時は保存済みの Payload をそのまま返す
type ConfirmOutcome struct {
	Result   ConfirmResult
	Payload  []byte
	Replayed bool
}

// Confirm は全席まとめて held → sold に遷移させる
func (s *ConfirmationService) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmOutcome, error) {
	uids, err := s.validate(in)
	if err != nil {
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
	fingerprint := idempotency.Fingerprint(in.LayoutID, in.SessionID, in.OrderRef, uids)
	rec, claimed, err := s.records.Claim(ctx, in.IdempotencyKey, fingerprint, now)
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			s.metrics.IncConfirmation("in_progress")
			return nil, err
		}
		s.metrics.IncConfirmation("error")
		return nil, fmt.Errorf("冪等キーの確保に失敗: %w", err)
	}
	if !claimed {
		return s.replay(rec, fingerprint)
	}

	n, err := s.seats.ConfirmSeats(ctx, in.LayoutID, in.SessionID, uids, in.OrderRef, now)
	if err != nil {
		// 座席は変更されていないので確保を取り消し、再ホールド後の再試行を可能にする
		s.releaseClaim(ctx, in.IdempotencyKey)

		var guard *seat.ConfirmGuardError
		if errors.As(err, &guard) {
			outcome, encErr := encodeOutcome(ConfirmResult{Success: false, Failed: guard.Failures})
			if encErr != nil {
				return nil, encErr
			}
			s.metrics.IncConfirmation("rejected")
			logger.Info("購入確定を拒否しました",
				logger.LayoutID(in.LayoutID), logger.SessionID(in.SessionID),
				zap.String("order_ref", in.OrderRef), zap.Int("failed", len(guard.Failures)))
			return outcome, &ConfirmRejectedError{Outcome: outcome}
		}
		s.metrics.IncConfirmation("error")
		return nil, fmt.Errorf("座席確定に失敗: %w", err)
	}

	outcome, err := encodeOutcome(ConfirmResult{Success: true, ConfirmedCount: n})
	if err != nil {
		return nil, err
	}
	if err := s.records.Complete(ctx, in.IdempotencyKey, outcome.Payload, s.clock.Now()); err != nil {
		// 座席は確定済み。キーは pending のまま残り、再送は処理中として扱われる
		logger.Error("冪等キーの完了記録に失敗しました", zap.String("idempotency_key", in.IdempotencyKey), zap.Error(err))
	}

	invalidateSnapshots(ctx, s.cache, in.LayoutID)
	s.publishSold(ctx, seat.SoldEvent{LayoutID: in.LayoutID, OrderRef: in.OrderRef, SeatUIDs: uids, ConfirmedAt: now})
	s.metrics.IncConfirmation("success")
	logger.Info("購入を確定しました",
		logger.LayoutID(in.LayoutID), logger.SessionID(in.SessionID),
		zap.String("order_ref", in.OrderRef), zap.Int("count", n))
	return outcome, nil
}

func (s *ConfirmationService) validate(in ConfirmInput) ([]string, error) {
	if err := requireSession(in.SessionID); err != nil {
		return nil, err
	}
	if in.IdempotencyKey == "" || len(in.IdempotencyKey) > maxIdempotencyKeyLength {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, idempotency.ErrKeyRequired)
	}
	if in.OrderRef == "" || len(in.OrderRef) > maxOrderRefLength {
		return nil, fmt.Errorf("%w: order_ref は1〜%d文字である必要があります", ErrInvalidInput, maxOrderRefLength)
	}
	return normalizeSeatUIDs(in.SeatUIDs, 0, true)
}

func (s *ConfirmationService) replay(rec *idempotency.Record, fingerprint string) (*ConfirmOutcome, error) {
	if rec.Fingerprint != fingerprint {
		s.metrics.IncConfirmation("rejected")
		return nil, idempotency.ErrKeyReused
	}
	if !rec.IsCompleted() {
		s.metrics.IncConfirmation("in_progress")
		return nil, idempotency.ErrInProgress
	}
	var result ConfirmResult
	if err := json.Unmarshal(rec.Payload, &result); err != nil {
		return nil, fmt.Errorf("保存済み結果のデコードに失敗: %w", err)
	}
	s.metrics.IncConfirmation("replay")
	return &ConfirmOutcome{Result: result, Payload: rec.Payload, Replayed: true}, nil
}

func (s *ConfirmationService) releaseClaim(ctx context.Context, key string) {
	if err := s.records.Release(context.WithoutCancel(ctx), key); err != nil {
		logger.Warn("冪等キーの取り消しに失敗しました", zap.String("idempotency_key", key), zap.Error(err))
	}
}

// publishSold は販売確定イベントを発行する（失敗しても確定は取り消さない）
func (s *ConfirmationService) publishSold(ctx context.Context, event seat.SoldEvent) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishSold(pubCtx, event); err != nil {
		logger.Warn("販売確定イベントの発行に失敗しました",
			logger.LayoutID(event.LayoutID), zap.String("order_ref", event.OrderRef), zap.Error(err))
	}
}

func encodeOutcome(result ConfirmResult) (*ConfirmOutcome, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("確定結果のエンコードに失敗: %w", err)
	}
	return &ConfirmOutcome{Result: result, Payload: payload}, nil
}
