package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	// HeaderSession はクライアントセッションIDを運ぶヘッダー
	HeaderSession = "X-Seating-Session"
	// HeaderIdempotencyKey は購入確定の冪等キー（ボディ未指定時に使う）
	HeaderIdempotencyKey = "Idempotency-Key"

	sessionContextKey = "seating_session"
	maxSessionLength  = 128
)

// RequireSession はセッションヘッダーを必須にするミドルウェア
// 取得したIDは SessionID で参照できる
func RequireSession() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(HeaderSession)
			if id == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "X-Seating-Session ヘッダーが必要です")
			}
			if len(id) > maxSessionLength {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, "セッションIDが長すぎます")
			}
			c.Set(sessionContextKey, id)
			return next(c)
		}
	}
}

// SessionID はリクエストのセッションIDを返す
// ミドルウェアを通っていない場合はヘッダーを直接読む
func SessionID(c echo.Context) string {
	if id, ok := c.Get(sessionContextKey).(string); ok {
		return id
	}
	return c.Request().Header.Get(HeaderSession)
}
