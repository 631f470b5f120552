package http

import (
	"net/http"
	"time"
)

// RateLimit is one fixed-window limit: at most Limit requests per Window per
// client IP.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// RateLimits holds the per-surface limits. Login and register carry their own
// tighter windows on top of the general API limit.
type RateLimits struct {
	API      RateLimit
	Login    RateLimit
	Register RateLimit
}

// rateLimitMiddleware enforces a named fixed-window limit keyed by client IP.
// A store failure lets the request through; the limiter protects against
// abuse, it is not an availability dependency.
func (h *Handler) rateLimitMiddleware(name string, limit RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil || limit.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := name + ":" + readIP(r)
			allowed, err := h.limiter.Take(r.Context(), key, limit.Limit, limit.Window)
			if err != nil {
				httpLogger().WarnContext(r.Context(), "rate limit check failed",
					"operation", "rate_limit",
					"outcome", "failure",
					"limit_name", name,
					"request_id", requestIDFromContext(r.Context()),
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
