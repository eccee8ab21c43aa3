package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	mw := NewRecoveryMiddleware(zap.NewNop())
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ads/decision", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRecoveryMiddleware_PassesThrough(t *testing.T) {
	mw := NewRecoveryMiddleware(zap.NewNop())
	h := mw.Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLoggingMiddleware_PreservesResponse(t *testing.T) {
	mw := NewLoggingMiddleware(zap.NewNop())
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ads/stats", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestAuthMiddleware_DisabledPassesThrough(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: false}
	mw := NewAuthMiddleware(cfg, zap.NewNop())
	h := mw.Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_RejectsMissingKey(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	mw := NewAuthMiddleware(cfg, zap.NewNop())
	h := mw.Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
}

func TestAuthMiddleware_AcceptsHeaderKey(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	mw := NewAuthMiddleware(cfg, zap.NewNop())

	var gotKey string
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey, _ = GetAPIKey(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ads/events", nil)
	req.Header.Set(AuthHeaderName, "sekrit")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sekrit", gotKey)
}

func TestAuthMiddleware_AcceptsQueryKey(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	mw := NewAuthMiddleware(cfg, zap.NewNop())
	h := mw.Handler(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ads/events?api_key=sekrit", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddleware_RejectsWrongKey(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	mw := NewAuthMiddleware(cfg, zap.NewNop())
	h := mw.Handler(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil)
	req.Header.Set(AuthHeaderName, "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_ProbesStayOpen(t *testing.T) {
	cfg := &config.AuthConfig{Enabled: true, APIKey: "sekrit"}
	mw := NewAuthMiddleware(cfg, zap.NewNop())
	h := mw.Handler(okHandler())

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, "path %s should not require auth", path)
	}
}

func TestRateLimitMiddleware_LimitsAPIRoutes(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	mw := NewRateLimitMiddleware(cfg, nil, zap.NewNop())
	h := mw.Handler(okHandler())

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_ProbesNotLimited(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	mw := NewRateLimitMiddleware(cfg, nil, zap.NewNop())
	h := mw.Handler(okHandler())

	// Exhaust the bucket on an API route first.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitMiddleware_DisabledPassesThrough(t *testing.T) {
	cfg := &config.RateLimitConfig{Enabled: false, RPS: 0.001, Burst: 1}
	mw := NewRateLimitMiddleware(cfg, nil, zap.NewNop())
	h := mw.Handler(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ads/decision", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
