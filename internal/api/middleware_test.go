package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r *gin.Engine, path string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	r := okRouter(corsMiddleware())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	r := okRouter(apiKeyMiddleware([]string{"secret"}))

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-Api-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", map[string]string{"X-Api-Key": "secret"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := get(r, "/ping", tt.header); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestAPIKeyMiddlewareDisabledWhenEmpty(t *testing.T) {
	r := okRouter(apiKeyMiddleware(nil))
	if w := get(r, "/ping", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := okRouter(rateLimitMiddleware(1, 1))

	if w := get(r, "/ping", nil); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}
	if w := get(r, "/ping", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d", w.Code)
	}
}
