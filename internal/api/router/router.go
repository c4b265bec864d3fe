package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/go-seating-engine/internal/api"
	"github.com/sanosuguru/go-seating-engine/internal/api/handler"
	"github.com/sanosuguru/go-seating-engine/internal/api/middleware"
	"github.com/sanosuguru/go-seating-engine/internal/config"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/metrics"
)

// Handlers はルーティング対象のハンドラー一式
type Handlers struct {
	Layout  *handler.LayoutHandler
	Seat    *handler.SeatHandler
	Hold    *handler.HoldHandler
	Confirm *handler.ConfirmHandler
	Health  *handler.HealthHandler
}

// Options はルーターの任意設定
type Options struct {
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // nil なら DefaultGatherer
	Admin    config.BasicAuthConfig
	// MetricsAuth は /metrics の Basic 認証
	MetricsAuth config.BasicAuthConfig
	// RateLimit は座席APIのルート別レート制限（ゼロ値なら無制限）
	RateLimit config.RateLimitConfig
}

// New はEchoインスタンスを組み立てる
func New(h Handlers, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e)
	if opts.Metrics != nil {
		e.Use(middleware.PrometheusMiddleware(opts.Metrics))
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
			middleware.BasicAuth(opts.MetricsAuth))
	}

	v1 := e.Group("/api/v1")
	v1.GET("/health", h.Health.Check)

	queryLimit := middleware.RateLimit("query", opts.RateLimit.Query)
	holdLimit := middleware.RateLimit("hold", opts.RateLimit.Hold)
	releaseLimit := middleware.RateLimit("release", opts.RateLimit.Release)
	confirmLimit := middleware.RateLimit("confirm", opts.RateLimit.Confirm)

	v1.GET("/events/:event_id/seating", h.Layout.GetSeating, queryLimit)
	v1.GET("/layouts/:layout_id/seats", h.Seat.List, queryLimit)

	session := middleware.RequireSession()
	v1.POST("/layouts/:layout_id/holds", h.Hold.Create, session, holdLimit)
	v1.DELETE("/layouts/:layout_id/holds", h.Hold.Release, session, releaseLimit)
	v1.POST("/layouts/:layout_id/holds/extend", h.Hold.Extend, session, holdLimit)
	v1.GET("/holds", h.Hold.List, session, queryLimit)
	v1.POST("/layouts/:layout_id/confirm", h.Confirm.Confirm, session, confirmLimit)

	admin := v1.Group("/admin", middleware.BasicAuth(opts.Admin))
	admin.POST("/layouts", h.Layout.Publish)
	admin.POST("/layouts/:layout_id/block", h.Layout.Block)
	admin.POST("/layouts/:layout_id/unblock", h.Layout.Unblock)
	admin.GET("/layouts/:layout_id/blocked", h.Layout.ListBlocked)

	return e
}
