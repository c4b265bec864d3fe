package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-seating-engine/internal/api"
	"github.com/sanosuguru/go-seating-engine/internal/api/middleware"
	"github.com/sanosuguru/go-seating-engine/internal/application"
)

type HoldHandler struct {
	service HoldServiceInterface
}

func NewHoldHandler(s HoldServiceInterface) *HoldHandler {
	return &HoldHandler{service: s}
}

type HoldRequest struct {
	SeatUIDs []string `json:"seat_uids" validate:"required,min=1" example:"A-1,A-2"`
}

// 解放・延長では座席未指定を許す（セッションの全ホールドが対象）
type OptionalSeatUIDsRequest struct {
	SeatUIDs []string `json:"seat_uids"`
}

// Create godoc
// @Summary 座席をホールド
// @Description 座席ごとに確保を試み、確保できた座席と失敗理由を返す
// @Tags holds
// @Accept json
// @Produce json
// @Param X-Seating-Session header string true "セッションID"
// @Param layout_id path string true "レイアウトID"
// @Param request body HoldRequest true "座席"
// @Success 200 {object} application.HoldResult
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} application.HoldResult "1席も確保できなかった"
// @Failure 422 {object} api.ErrorResponse
// @Router /layouts/{layout_id}/holds [post]
func (h *HoldHandler) Create(c echo.Context) error {
	var req HoldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.Hold(c.Request().Context(), application.HoldInput{
		LayoutID: c.Param("layout_id"), SessionID: middleware.SessionID(c), SeatUIDs: req.SeatUIDs,
	})
	if err != nil {
		var conflict *application.HoldConflictError
		if errors.As(err, &conflict) {
			return c.JSON(http.StatusConflict, conflict.Result)
		}
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// Release godoc
// @Summary ホールドを解放
// @Tags holds
// @Accept json
// @Produce json
// @Param X-Seating-Session header string true "セッションID"
// @Param layout_id path string true "レイアウトID"
// @Success 200 {object} map[string]int
// @Failure 400 {object} api.ErrorResponse
// @Router /layouts/{layout_id}/holds [delete]
func (h *HoldHandler) Release(c echo.Context) error {
	var req OptionalSeatUIDsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	n, err := h.service.Release(c.Request().Context(), application.ReleaseInput{
		LayoutID: c.Param("layout_id"), SessionID: middleware.SessionID(c), SeatUIDs: req.SeatUIDs,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"released_count": n})
}

// Extend godoc
// @Summary 決済開始時にホールドを延長
// @Description 自セッションの有効なホールドの期限を決済用の期限まで延ばす（seat_uids 省略時は全件）
// @Tags holds
// @Accept json
// @Produce json
// @Param X-Seating-Session header string true "セッションID"
// @Param layout_id path string true "レイアウトID"
// @Param request body OptionalSeatUIDsRequest false "座席"
// @Success 200 {object} application.ExtendResult
// @Failure 400 {object} api.ErrorResponse
// @Failure 422 {object} api.ErrorResponse
// @Router /layouts/{layout_id}/holds/extend [post]
func (h *HoldHandler) Extend(c echo.Context) error {
	var req OptionalSeatUIDsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	res, err := h.service.ExtendHolds(c.Request().Context(), application.ExtendInput{
		LayoutID: c.Param("layout_id"), SessionID: middleware.SessionID(c), SeatUIDs: req.SeatUIDs,
	})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type HoldListResponse struct {
	Holds []application.HoldView `json:"holds"`
}

// List godoc
// @Summary セッションの有効なホールド一覧
// @Tags holds
// @Produce json
// @Param X-Seating-Session header string true "セッションID"
// @Success 200 {object} HoldListResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /holds [get]
func (h *HoldHandler) List(c echo.Context) error {
	holds, err := h.service.ListHolds(c.Request().Context(), middleware.SessionID(c))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, HoldListResponse{Holds: holds})
}
