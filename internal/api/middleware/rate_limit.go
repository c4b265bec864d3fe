package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sanosuguru/go-seating-engine/internal/config"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/logger"
)

// 一定時間リクエストのない識別子は忘れる
const rateLimitExpiresIn = 3 * time.Minute

// RateLimit はルート単位のレート制限ミドルウェア
// セッションヘッダーがあればセッション単位、なければクライアントIP単位で数える
func RateLimit(route string, limit config.RouteLimit) echo.MiddlewareFunc {
	if limit.PerMinute <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	burst := limit.Burst
	if burst < 1 {
		burst = 1
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(limit.PerMinute) / 60),
		Burst:     burst,
		ExpiresIn: rateLimitExpiresIn,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: rateLimitIdentifier,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.Warn("レート制限を超えました", zap.String("route", route), zap.String("identifier", identifier))
			return echo.NewHTTPError(http.StatusTooManyRequests, "リクエストが多すぎます")
		},
	})
}

func rateLimitIdentifier(c echo.Context) (string, error) {
	if id := c.Request().Header.Get(HeaderSession); id != "" {
		return "session:" + id, nil
	}
	return "ip:" + c.RealIP(), nil
}
