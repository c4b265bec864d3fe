package seat

import "errors"

// Seat ドメインのエラー定義
var (
	ErrSeatNotFound       = errors.New("座席が見つかりません")
	ErrSeatHeld           = errors.New("座席は他のセッションがホールド中です")
	ErrSeatSold           = errors.New("座席は販売済みです")
	ErrSeatBlocked        = errors.New("座席はブロックされています")
	ErrSeatDisabled       = errors.New("座席は利用できません")
	ErrSeatNotHeld        = errors.New("座席はこのセッションでホールドされていません")
	ErrHoldExpired        = errors.New("ホールドの有効期限が切れています")
	ErrInvariantViolation = errors.New("座席の状態が不整合です")
)

// FailureReason は座席単位の失敗理由
type FailureReason string

const (
	ReasonHeld     FailureReason = "held"
	ReasonSold     FailureReason = "sold"
	ReasonBlocked  FailureReason = "blocked"
	ReasonDisabled FailureReason = "disabled"
	ReasonNotFound FailureReason = "not_found"
	ReasonNotHeld  FailureReason = "not_held"
	ReasonExpired  FailureReason = "expired"
)

// ReasonFor はエラーを失敗理由に変換する
func ReasonFor(err error) FailureReason {
	switch {
	case errors.Is(err, ErrSeatHeld):
		return ReasonHeld
	case errors.Is(err, ErrSeatSold):
		return ReasonSold
	case errors.Is(err, ErrSeatBlocked):
		return ReasonBlocked
	case errors.Is(err, ErrSeatDisabled):
		return ReasonDisabled
	case errors.Is(err, ErrSeatNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrHoldExpired):
		return ReasonExpired
	default:
		return ReasonNotHeld
	}
}

// ReasonForStatus は現在状態からホールド失敗理由を決める
func ReasonForStatus(st Status) FailureReason {
	switch st {
	case StatusSold:
		return ReasonSold
	case StatusBlocked:
		return ReasonBlocked
	case StatusDisabled:
		return ReasonDisabled
	default:
		return ReasonHeld
	}
}

// Failure は1席分の失敗
type Failure struct {
	SeatUID string        `json:"seat_uid"`
	Reason  FailureReason `json:"reason"`
}

// ConfirmGuardError は購入確定のガードに失敗した座席の一覧を持つ
type ConfirmGuardError struct {
	Failures []Failure
}

func (e *ConfirmGuardError) Error() string {
	return "ホールドされていない座席が含まれています"
}

// Unwrap は errors.Is(err, ErrSeatNotHeld) を成立させる
func (e *ConfirmGuardError) Unwrap() error {
	return ErrSeatNotHeld
}
