package application

import (
	"errors"

	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

// アプリケーション層のエラー定義
var (
	ErrInvalidInput    = errors.New("リクエストが不正です")
	ErrSessionRequired = errors.New("セッションIDは必須です")
	ErrHoldConflict    = errors.New("指定された座席はすべて確保できませんでした")
	ErrConfirmRejected = errors.New("購入を確定できませんでした")
)

// HoldConflictError は全席のホールドに失敗したことを表す
// 呼び出し側はどの座席が取れなかったかを Result から取得できる
type HoldConflictError struct {
	Result *HoldResult
}

func (e *HoldConflictError) Error() string { return ErrHoldConflict.Error() }

func (e *HoldConflictError) Unwrap() error { return ErrHoldConflict }

// ConfirmRejectedError は購入確定のガードに失敗したことを表す（座席は一切変更されていない）
type ConfirmRejectedError struct {
	Outcome *ConfirmOutcome
}

func (e *ConfirmRejectedError) Error() string { return ErrConfirmRejected.Error() }

func (e *ConfirmRejectedError) Unwrap() error { return ErrConfirmRejected }

// Failures は失敗した座席を返す
func (e *ConfirmRejectedError) Failures() []seat.Failure {
	if e.Outcome == nil {
		return nil
	}
	return e.Outcome.Result.Failed
}
