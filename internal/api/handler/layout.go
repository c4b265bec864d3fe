package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-seating-engine/internal/api"
	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/domain/layout"
	"github.com/sanosuguru/go-seating-engine/internal/domain/seat"
)

type LayoutHandler struct {
	service LayoutServiceInterface
}

func NewLayoutHandler(s LayoutServiceInterface) *LayoutHandler {
	return &LayoutHandler{service: s}
}

type LayoutResponse struct {
	LayoutID    string             `json:"layout_id"`
	EventID     string             `json:"event_id"`
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Geometry    layout.Geometry    `json:"geometry"`
	PriceTiers  []layout.PriceTier `json:"price_tiers"`
	Counts      seat.Counts        `json:"counts"`
	PublishedAt *time.Time         `json:"published_at,omitempty"`
}

func toLayoutResponse(v *application.LayoutView) LayoutResponse {
	l := v.Layout
	return LayoutResponse{
		LayoutID: l.ID, EventID: l.EventID, Name: l.Name, Version: l.Version,
		Geometry: l.Geometry, PriceTiers: v.PriceTiers, Counts: v.Counts,
		PublishedAt: l.PublishedAt,
	}
}

// GetSeating godoc
// @Summary イベントの座席表を取得
// @Tags layouts
// @Produce json
// @Param event_id path string true "イベントID"
// @Success 200 {object} LayoutResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /events/{event_id}/seating [get]
func (h *LayoutHandler) GetSeating(c echo.Context) error {
	v, err := h.service.GetLayout(c.Request().Context(), c.Param("event_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, toLayoutResponse(v))
}

type PublishLayoutRequest struct {
	Layout       *layout.Layout    `json:"layout" validate:"required"`
	PreSoldSeats map[string]string `json:"pre_sold_seats"`
}

type PublishLayoutResponse struct {
	LayoutID    string     `json:"layout_id"`
	EventID     string     `json:"event_id"`
	Version     int        `json:"version"`
	SeatCount   int        `json:"seat_count"`
	PublishedAt *time.Time `json:"published_at"`
}

// Publish godoc
// @Summary 座席表を公開し座席を実体化
// @Tags admin
// @Accept json
// @Produce json
// @Success 201 {object} PublishLayoutResponse
// @Failure 409 {object} api.ErrorResponse "公開済み"
// @Failure 422 {object} api.ErrorResponse
// @Router /admin/layouts [post]
func (h *LayoutHandler) Publish(c echo.Context) error {
	var req PublishLayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	l, err := h.service.Publish(c.Request().Context(), application.PublishInput{Layout: req.Layout, PreSold: req.PreSoldSeats})
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusCreated, PublishLayoutResponse{
		LayoutID: l.ID, EventID: l.EventID, Version: l.Version,
		SeatCount: len(l.Seats()), PublishedAt: l.PublishedAt,
	})
}

type SeatUIDsRequest struct {
	SeatUIDs []string `json:"seat_uids" validate:"required,min=1"`
}

// Block godoc
// @Summary 座席を管理者ブロック
// @Tags admin
// @Router /admin/layouts/{layout_id}/block [post]
func (h *LayoutHandler) Block(c echo.Context) error {
	var req SeatUIDsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	n, err := h.service.BlockSeats(c.Request().Context(), c.Param("layout_id"), req.SeatUIDs)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"blocked_count": n})
}

// Unblock godoc
// @Summary 座席のブロックを解除
// @Tags admin
// @Router /admin/layouts/{layout_id}/unblock [post]
func (h *LayoutHandler) Unblock(c echo.Context) error {
	var req SeatUIDsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	n, err := h.service.UnblockSeats(c.Request().Context(), c.Param("layout_id"), req.SeatUIDs)
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unblocked_count": n})
}

// ListBlocked godoc
// @Summary ブロック中の座席一覧
// @Tags admin
// @Router /admin/layouts/{layout_id}/blocked [get]
func (h *LayoutHandler) ListBlocked(c echo.Context) error {
	uids, err := h.service.ListBlocked(c.Request().Context(), c.Param("layout_id"))
	if err != nil {
		return api.NewHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"seat_uids": uids})
}
