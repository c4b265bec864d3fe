package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-seating-engine/internal/api"
)

type SeatHandler struct {
	service AvailabilityServiceInterface
}

func NewSeatHandler(s AvailabilityServiceInterface) *SeatHandler {
	return &SeatHandler{service: s}
}

// List godoc
// @Summary 座席一覧と状態を取得
// @Description 期限切れのホールドは available として返す
// @Tags seats
// @Produce json
// @Param layout_id path string true "レイアウトID"
// @Success 200 {object} application.SeatListing
// @Failure 404 {object} api.ErrorResponse
// @Router /layouts/{layout_id}/seats [get]
func (h *SeatHandler) List(c echo.Context) error {
	listing, err := h.service.ListSeats(c.Request().Context(), c.Param("layout_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, listing)
}
