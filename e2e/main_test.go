package e2e

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-seating-engine/internal/api/handler"
	"github.com/sanosuguru/go-seating-engine/internal/api/middleware"
	"github.com/sanosuguru/go-seating-engine/internal/api/router"
	"github.com/sanosuguru/go-seating-engine/internal/application"
	"github.com/sanosuguru/go-seating-engine/internal/config"
	"github.com/sanosuguru/go-seating-engine/internal/infrastructure/memory"
	redisinfra "github.com/sanosuguru/go-seating-engine/internal/infrastructure/redis"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/clock"
	"github.com/sanosuguru/go-seating-engine/internal/pkg/metrics"
	"github.com/sanosuguru/go-seating-engine/internal/worker"
)

const (
	adminUser     = "admin"
	adminPassword = "secret"
)

// TestServer はE2Eテスト用のサーバー
// ストアはメモリ、キャッシュとロックは miniredis を使う
type TestServer struct {
	Echo    *echo.Echo
	Clock   *clock.Manual
	Holds   *application.HoldService
	Sweeper *worker.ExpiredHoldSweeper
}

// NewTestServer はテスト用サーバーを作成
func NewTestServer(t *testing.T, opts ...func(*router.Options)) *TestServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	clk := clock.NewManual(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	layouts := memory.NewLayoutRepository()
	seats := memory.NewSeatRepository()
	records := memory.NewIdempotencyRepository()
	cache := redisinfra.NewSeatSnapshotCache(rc)

	availability := application.NewAvailabilityService(layouts, seats, clk,
		application.WithSnapshotCache(cache, time.Minute))
	layoutService := application.NewLayoutService(layouts, seats, availability, cache, clk)
	holdService := application.NewHoldService(layouts, seats, clk,
		application.WithHoldCache(cache),
		application.WithHoldMetrics(m),
	)
	confirmService := application.NewConfirmationService(layouts, seats, records, clk,
		application.WithConfirmCache(cache),
		application.WithConfirmMetrics(m),
	)
	sweeper := worker.NewExpiredHoldSweeper(holdService, 20*time.Millisecond,
		worker.WithLocker(redisinfra.NewLockManager(rc), time.Second),
		worker.WithIdempotencyPruner(records, 24*time.Hour),
		worker.WithSweeperClock(clk),
	)

	routerOpts := router.Options{
		Metrics:  m,
		Gatherer: reg,
		Admin:    config.BasicAuthConfig{User: adminUser, Password: adminPassword},
	}
	for _, opt := range opts {
		opt(&routerOpts)
	}
	e := router.New(router.Handlers{
		Layout:  handler.NewLayoutHandler(layoutService),
		Seat:    handler.NewSeatHandler(availability),
		Hold:    handler.NewHoldHandler(holdService),
		Confirm: handler.NewConfirmHandler(confirmService),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"redis": func(ctx context.Context) error { return redisinfra.Ping(ctx, rc) },
		}),
	}, routerOpts)

	return &TestServer{Echo: e, Clock: clk, Holds: holdService, Sweeper: sweeper}
}

// Request はHTTPリクエストを実行
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// AsSession はセッションヘッダー付きでリクエストする
func (s *TestServer) AsSession(session, method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.Request(method, path, body, map[string]string{middleware.HeaderSession: session})
}

// AsAdmin は管理者の資格情報付きでリクエストする
func (s *TestServer) AsAdmin(method, path string, body interface{}) *httptest.ResponseRecorder {
	token := base64.StdEncoding.EncodeToString([]byte(adminUser + ":" + adminPassword))
	return s.Request(method, path, body, map[string]string{"Authorization": "Basic " + token})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (%s)", err, rec.Body.String())
	}
}
