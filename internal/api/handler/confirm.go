package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-seating-engine/internal/api"
	"github.com/sanosuguru/go-seating-engine/internal/api/middleware"
	"github.com/sanosuguru/go-seating-engine/internal/application"
)

// HeaderIdempotentReplayed は保存済みの結果を返したことを示す
const HeaderIdempotentReplayed = "Idempotent-Replayed"

type ConfirmHandler struct {
	service ConfirmationServiceInterface
}

func NewConfirmHandler(s ConfirmationServiceInterface) *ConfirmHandler {
	return &ConfirmHandler{service: s}
}

type ConfirmRequest struct {
	SeatUIDs       []string `json:"seat_uids" validate:"required,min=1" example:"A-1,A-2"`
	OrderRef       string   `json:"order_ref" validate:"required,max=128" example:"ORDER-123"`
	IdempotencyKey string   `json:"idempotency_key" validate:"omitempty,max=128" example:"checkout-2026-001"`
}

// Confirm godoc
// @Summary ホールド中の座席を購入確定
// @Description 全席まとめて sold にする。同じ冪等キーの再送は同一のレスポンスを返す
// @Tags confirm
// @Accept json
// @Produce json
// @Param X-Seating-Session header string true "セッションID"
// @Param Idempotency-Key header string false "冪等キー（ボディ未指定時）"
// @Param layout_id path string true "レイアウトID"
// @Param request body ConfirmRequest true "確定内容"
// @Success 200 {object} application.ConfirmResult
// @Failure 409 {object} api.ErrorResponse "同じキーを処理中"
// @Failure 422 {object} application.ConfirmResult "ホールドされていない座席を含む"
// @Router /layouts/{layout_id}/confirm [post]
func (h *ConfirmHandler) Confirm(c echo.Context) error {
	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.Request().Header.Get(middleware.HeaderIdempotencyKey)
	}

	out, err := h.service.Confirm(c.Request().Context(), application.ConfirmInput{
		LayoutID:       c.Param("layout_id"),
		SessionID:      middleware.SessionID(c),
		SeatUIDs:       req.SeatUIDs,
		OrderRef:       req.OrderRef,
		IdempotencyKey: key,
	})
	if err != nil {
		var rejected *application.ConfirmRejectedError
		if errors.As(err, &rejected) && rejected.Outcome != nil {
			return c.JSONBlob(http.StatusUnprocessableEntity, rejected.Outcome.Payload)
		}
		return api.NewHTTPError(err)
	}
	if out.Replayed {
		c.Response().Header().Set(HeaderIdempotentReplayed, "true")
	}
	return c.JSONBlob(http.StatusOK, out.Payload)
}
