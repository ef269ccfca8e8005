package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/transfa/market-service/internal/domain"
)

// RateLimiter admits or refuses one attempt by subject. *app.RedisRateLimiter satisfies it.
type RateLimiter interface {
	Allow(ctx context.Context, subject string) error
}

// LoginThrottle limits credential endpoints per client IP. A nil limiter
// disables throttling. A rate_limited refusal becomes a 429; any other limiter
// error lets the request through.
func LoginThrottle(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := limiter.Allow(r.Context(), clientIP(r))
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}
			if domain.KindOf(err) == domain.KindRateLimited {
				writeError(w, r, err, logger)
				return
			}
			if logger != nil {
				logger.Warn("rate limiter unavailable, allowing request", "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr, which middleware.RealIP has
// already replaced with the forwarded address when one is present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
