package seat

import (
	"context"
	"time"
)

// HoldResult はホールド試行の結果
type HoldResult string

const (
	HoldGranted      HoldResult = "granted"
	HoldExtended     HoldResult = "extended"
	HoldAlreadyOwned HoldResult = "already_owned"
	HoldFailed       HoldResult = "failed"
)

// Held は結果が成功側かを返す
func (r HoldResult) Held() bool {
	return r == HoldGranted || r == HoldExtended || r == HoldAlreadyOwned
}

// HoldRequest はホールド要求
type HoldRequest struct {
	LayoutID    string
	SessionID   string
	SeatUIDs    []string
	ExpiresAt   time.Time
	Now         time.Time
	ExtendOwned bool // 自セッションのホールドを延長するか
}

// HoldOutcome は1席分のホールド結果
type HoldOutcome struct {
	SeatUID   string
	Result    HoldResult
	Reason    FailureReason
	ExpiresAt time.Time
}

// Repository は座席ストアのインターフェース
// 状態を変える操作はすべて座席単位でアトミックに行う
type Repository interface {
	// CreateBulk は座席を一括作成する（レイアウトの実体化）
	CreateBulk(ctx context.Context, seats []*Seat) error

	// DeleteByLayout はレイアウトの座席をすべて削除する（公開失敗時の後始末）
	DeleteByLayout(ctx context.Context, layoutID string) (int, error)

	// ListByLayout はレイアウトの全座席を取得する
	ListByLayout(ctx context.Context, layoutID string) ([]*Seat, error)

	// ListHeldBySession はセッションの有効なホールドを取得する
	ListHeldBySession(ctx context.Context, sessionID string, now time.Time) ([]*Seat, error)

	// ListBlocked はブロック中の座席を取得する
	ListBlocked(ctx context.Context, layoutID string) ([]*Seat, error)

	// HoldSeats は座席ごとに available → held を試みる
	HoldSeats(ctx context.Context, req HoldRequest) ([]HoldOutcome, error)

	// ReleaseSeats はセッションのホールドを解放する（seatUIDs が空なら全件）
	ReleaseSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, now time.Time) (int, error)

	// ExtendHolds はセッションの有効なホールドの期限を延長する
	ExtendHolds(ctx context.Context, layoutID, sessionID string, seatUIDs []string, expiresAt, now time.Time) (int, error)

	// ConfirmSeats は held → sold を全件まとめて行う（1件でも失敗すれば何も変更しない）
	ConfirmSeats(ctx context.Context, layoutID, sessionID string, seatUIDs []string, orderRef string, now time.Time) (int, error)

	// ExpireHolds は期限切れのホールドを最大 limit 件回収する
	ExpireHolds(ctx context.Context, now time.Time, limit int) ([]Key, error)

	// BlockSeats は available の座席のみ blocked にする
	BlockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error)

	// UnblockSeats は blocked の座席のみ available に戻す
	UnblockSeats(ctx context.Context, layoutID string, seatUIDs []string, now time.Time) (int, error)
}
