package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// 世代キーは無効化のたびに延長する
const generationTTL = 24 * time.Hour

// setIfCurrentScript は世代が一致する場合のみスナップショットを保存する
var setIfCurrentScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// SeatSnapshotCache はレイアウト単位の座席スナップショットをキャッシュする
// 座席を変更する操作のたびに Invalidate される
type SeatSnapshotCache struct {
	client *redis.Client
}

// NewSeatSnapshotCache は新しいSeatSnapshotCacheインスタンスを作成する
func NewSeatSnapshotCache(client *redis.Client) *SeatSnapshotCache {
	return &SeatSnapshotCache{client: client}
}

// Get はスナップショットをキャッシュから取得する
func (c *SeatSnapshotCache) Get(ctx context.Context, layoutID string) (*seat.Snapshot, error) {
	data, err := c.client.Get(ctx, c.snapshotKey(layoutID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	var snap seat.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// 壊れたエントリはミス扱い
		return nil, ErrCacheMiss
	}
	return &snap, nil
}

// Generation はレイアウトの現在のキャッシュ世代を返す（未作成なら0）
func (c *SeatSnapshotCache) Generation(ctx context.Context, layoutID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(layoutID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("キャッシュ世代の取得に失敗: %w", err)
	}
	return gen, nil
}

// Set はスナップショットをキャッシュに保存する
// snap.Generation 以降に Invalidate されていれば何もしない
func (c *SeatSnapshotCache) Set(ctx context.Context, snap *seat.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("スナップショットのエンコードに失敗: %w", err)
	}
	keys := []string{c.snapshotKey(snap.LayoutID), c.generationKey(snap.LayoutID)}
	if err := setIfCurrentScript.Run(ctx, c.client, keys, snap.Generation, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はレイアウトのキャッシュを無効化する
func (c *SeatSnapshotCache) Invalidate(ctx context.Context, layoutIDs ...string) error {
	if len(layoutIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range layoutIDs {
			pipe.Incr(ctx, c.generationKey(id))
			pipe.Expire(ctx, c.generationKey(id), generationTTL)
			pipe.Del(ctx, c.snapshotKey(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

func (c *SeatSnapshotCache) snapshotKey(layoutID string) string {
	return fmt.Sprintf("seats:snapshot:%s", layoutID)
}

func (c *SeatSnapshotCache) generationKey(layoutID string) string {
	return fmt.Sprintf("seats:snapshot-gen:%s", layoutID)
}
