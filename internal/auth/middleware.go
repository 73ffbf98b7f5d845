package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-pay/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier Verifier
}

// RequireAuth enforces that a valid bearer token is present before executing
// the next handler and injects the caller identity into the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		id, err := m.Verifier.Verify(raw, time.Now())
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
			return
		}
		ctx := common.WithUserID(r.Context(), id.UserID)
		if id.Role != "" {
			ctx = common.WithRole(ctx, id.Role)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errNoToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errNoToken
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errNoToken
	}
	return token, nil
}
