package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/domain/idempotency"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusFor はドメイン・アプリケーションのエラーをHTTPステータスに変換する
func StatusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrSessionRequired):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrInvalidInput),
		errors.Is(err, application.ErrConfirmRejected),
		errors.Is(err, idempotency.ErrKeyReused),
		errors.Is(err, idempotency.ErrKeyRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, layout.ErrLayoutNotFound),
		errors.Is(err, seat.ErrSeatNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrHoldConflict),
		errors.Is(err, idempotency.ErrInProgress),
		errors.Is(err, layout.ErrLayoutAlreadyPublished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewHTTPError はエラーを echo.HTTPError に変換する
// 5xx の場合は内部エラーの詳細をクライアントへ返さない
func NewHTTPError(err error) *echo.HTTPError {
	code := StatusFor(err)
	message := err.Error()
	if code >= http.StatusInternalServerError {
		message = "内部サーバーエラー"
	}
	return echo.NewHTTPError(code, message).SetInternal(err)
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    = http.StatusInternalServerError
		message = "内部サーバーエラー"
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else if code = StatusFor(err); code < http.StatusInternalServerError {
		message = err.Error()
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
