package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/sanosuguru/go-seating-engine/internal/config"
)

func newRateLimitedEcho(limit config.RouteLimit) *echo.Echo {
	e := echo.New()
	e.POST("/holds", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}, RateLimit("hold", limit))
	return e
}

func postHold(e *echo.Echo, session, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/holds", nil)
	if session != "" {
		req.Header.Set(HeaderSession, session)
	}
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimit(t *testing.T) {
	t.Run("バースト超過は429", func(t *testing.T) {
		e := newRateLimitedEcho(config.RouteLimit{PerMinute: 1, Burst: 2})

		assert.Equal(t, http.StatusOK, postHold(e, "session-x", "10.0.0.1"))
		assert.Equal(t, http.StatusOK, postHold(e, "session-x", "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, postHold(e, "session-x", "10.0.0.1"))
	})

	t.Run("セッションごとに数える", func(t *testing.T) {
		e := newRateLimitedEcho(config.RouteLimit{PerMinute: 1, Burst: 1})

		assert.Equal(t, http.StatusOK, postHold(e, "session-x", "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, postHold(e, "session-x", "10.0.0.1"))
		// 同じIPでも別セッションは別枠
		assert.Equal(t, http.StatusOK, postHold(e, "session-y", "10.0.0.1"))
	})

	t.Run("セッションがなければIPで数える", func(t *testing.T) {
		e := newRateLimitedEcho(config.RouteLimit{PerMinute: 1, Burst: 1})

		assert.Equal(t, http.StatusOK, postHold(e, "", "10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, postHold(e, "", "10.0.0.1"))
		assert.Equal(t, http.StatusOK, postHold(e, "", "10.0.0.2"))
	})

	t.Run("上限0は無制限", func(t *testing.T) {
		e := newRateLimitedEcho(config.RouteLimit{})
		for i := 0; i < 20; i++ {
			assert.Equal(t, http.StatusOK, postHold(e, "session-x", "10.0.0.1"))
		}
	})
}
