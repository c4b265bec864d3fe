package layout

import "context"

// Repository は座席表リポジトリのインターフェース
type Repository interface {
	// Create は座席表を保存する
	Create(ctx context.Context, l *Layout) error

	// GetByID はIDから座席表を取得する
	GetByID(ctx context.Context, id string) (*Layout, error)

	// GetPublishedByEventID はイベントの公開済み座席表を取得する
	GetPublishedByEventID(ctx context.Context, eventID string) (*Layout, error)
}
