package middleware

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
)

type RateLimiter interface {
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// RateLimit applies a named fixed-window limit. The identifier is the
// authenticated user when present, the client IP otherwise. Limiter errors
// fail open but are logged.
func RateLimit(limiter RateLimiter, action string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, ok := UserIDFromContext(r.Context())
			if !ok {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				identifier = host
			}
			allowed, err := limiter.Allow(r.Context(), identifier, action)
			if err != nil {
				logger.Warn("rate limiter unavailable",
					zap.String("action", action),
					zap.Error(err))
				allowed = true
			}
			if !allowed {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
