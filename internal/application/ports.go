package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

// SnapshotCache はレイアウト単位の座席スナップショットのキャッシュ
// Get はミス・障害のいずれでもエラーを返し、呼び出し側はストアから読み直す
// Invalidate は世代を進め、Set は snap.Generation が現在の世代と一致する場合のみ保存する
type SnapshotCache interface {
	Get(ctx context.Context, layoutID string) (*seat.Snapshot, error)
	Generation(ctx context.Context, layoutID string) (int64, error)
	Set(ctx context.Context, snap *seat.Snapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, layoutIDs ...string) error
}

// LayoutMaterializer は座席表と座席を1トランザクションで作成できるストア
type LayoutMaterializer interface {
	CreateWithSeats(ctx context.Context, l *layout.Layout, seats []*seat.Seat) error
}

// SoldPublisher は販売確定イベントの発行先
type SoldPublisher interface {
	PublishSold(ctx context.Context, event seat.SoldEvent) error
}

// invalidateSnapshots はキャッシュを無効化する（失敗はログのみ）
func invalidateSnapshots(ctx context.Context, cache SnapshotCache, layoutIDs ...string) {
	if cache == nil || len(layoutIDs) == 0 {
		return
	}
	if err := cache.Invalidate(ctx, layoutIDs...); err != nil {
		logger.Warn("座席キャッシュの無効化に失敗しました", zap.Strings("layout_ids", layoutIDs), zap.Error(err))
	}
}
