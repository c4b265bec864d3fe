package idempotency

import (
	"context"
	"time"
)

// Repository は冪等性レコードのリポジトリ
type Repository interface {
	// Claim はキーを一意挿入で確保する
	// 既にキーが存在する場合は既存レコードと false を返す
	Claim(ctx context.Context, key, fingerprint string, now time.Time) (*Record, bool, error)

	// Complete は確保済みキーに結果を保存する
	Complete(ctx context.Context, key string, payload []byte, now time.Time) error

	// Release は未完了の確保を取り消す
	Release(ctx context.Context, key string) error

	// Get はキーからレコードを取得する
	Get(ctx context.Context, key string) (*Record, error)

	// PruneOlderThan は保持期間を過ぎたレコードを削除する
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
