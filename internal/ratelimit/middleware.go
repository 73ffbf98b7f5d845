package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-pay/internal/common"
)

// Config derives the limit key and thresholds for a request.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler wraps an http.Handler with sliding-window limiting. Redis errors
// fail open: the request proceeds and OnError is told about it, so a limiter
// outage never blocks confirmations.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := max(int(time.Until(resetAt).Seconds()), 0)
			hdr.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
