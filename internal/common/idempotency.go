package common

import (
	"context"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem rejects replays of write requests that carry an Idempotency-Key
// header. The key is claimed with SETNX; a second request inside the TTL
// sees the claim and is answered with 409 instead of re-running the handler.
// Requests without the header pass through untouched.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Idempotency-Key")
		if raw == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := "idem:" + Sha256Hex(raw)
		claimed, err := i.R.SetNX(r.Context(), key, "locked", i.TTL).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !claimed {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		defer func() {
			// keep the claim alive for the full TTL even if the handler panics
			_ = i.R.Expire(context.Background(), key, i.TTL).Err()
		}()
		next.ServeHTTP(w, r)
	})
}
