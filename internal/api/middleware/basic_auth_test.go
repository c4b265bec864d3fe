package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seating-engine/internal/config"
)

func runBasicAuth(t *testing.T, cfg config.BasicAuthConfig, authHeader string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := BasicAuth(cfg)(func(c echo.Context) error {
		return c.String(http.StatusOK, "metrics")
	})
	return rec, handler(c)
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestBasicAuth_NoCredentials(t *testing.T) {
	// 認証設定がない場合はスキップ
	rec, err := runBasicAuth(t, config.BasicAuthConfig{}, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestBasicAuth_ValidCredentials(t *testing.T) {
	cfg := config.BasicAuthConfig{User: "testuser", Password: "testpass"}
	rec, err := runBasicAuth(t, cfg, basic("testuser", "testpass"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuth_Rejected(t *testing.T) {
	cfg := config.BasicAuthConfig{User: "testuser", Password: "testpass"}
	tests := []struct {
		name   string
		header string
	}{
		{"間違った認証情報", basic("wronguser", "wrongpass")},
		{"パスワード違い", basic("testuser", "nope")},
		{"ヘッダーなし", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := runBasicAuth(t, cfg, tt.header)
			// Basic認証失敗時はHTTPErrorが返る
			if err != nil {
				he, ok := err.(*echo.HTTPError)
				require.True(t, ok)
				assert.Contains(t, []int{http.StatusUnauthorized, http.StatusBadRequest}, he.Code)
				return
			}
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
