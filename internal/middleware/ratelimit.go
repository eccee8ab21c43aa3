package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/atharv404/kumele-ads/internal/config"
	"github.com/atharv404/kumele-ads/internal/metrics"
)

// RateLimitMiddleware applies a global token bucket to the API routes.
// Probe endpoints are never limited.
type RateLimitMiddleware struct {
	limiter *rate.Limiter
	config  *config.RateLimitConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRateLimitMiddleware(cfg *config.RateLimitConfig, m *metrics.Metrics, logger *zap.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.limiter.Allow() {
			rl.metrics.RecordRateLimitHit(r.URL.Path)
			rl.logger.Warn("rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("Retry-After", "1")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
