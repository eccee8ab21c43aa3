package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atharv404/kumele-ads/internal/config"
)

const (
	// AuthHeaderName is the header clients send the API key in.
	AuthHeaderName = "X-API-Key"
	// AuthQueryParam is the fallback query parameter for clients that
	// cannot set headers (pixels, webviews).
	AuthQueryParam = "api_key"
)

type contextKey string

// APIKeyContextKey carries the presented API key in the request context.
const APIKeyContextKey contextKey = "api_key"

// AuthMiddleware guards the API routes with a shared key. Probe endpoints
// stay open so load balancers can reach them unauthenticated.
type AuthMiddleware struct {
	config *config.AuthConfig
	logger *zap.Logger
}

func NewAuthMiddleware(cfg *config.AuthConfig, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{config: cfg, logger: logger}
}

func (am *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !am.config.Enabled || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(AuthHeaderName)
		if key == "" {
			key = r.URL.Query().Get(AuthQueryParam)
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(am.config.APIKey)) != 1 {
			am.logger.Warn("unauthorized request",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("WWW-Authenticate", `APIKey realm="ads"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), APIKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAPIKey returns the API key the request authenticated with, if any.
func GetAPIKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(APIKeyContextKey).(string)
	return key, ok
}
