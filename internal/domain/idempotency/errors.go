package idempotency

import "errors"

// Idempotency ドメインのエラー定義
var (
	ErrRecordNotFound = errors.New("冪等キーが見つかりません")
	ErrInProgress     = errors.New("同じ冪等キーのリクエストを処理中です")
	ErrKeyReused      = errors.New("冪等キーが異なるリクエストで使用されています")
	ErrKeyRequired    = errors.New("冪等キーは必須です")
)
