package common

import "context"

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	roleKey   ctxKey = "auth/role"
)

// RoleAdmin marks callers allowed to cancel any order.
const RoleAdmin = "admin"

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRole stores the caller's role on the provided context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

// Role extracts the caller's role from the context if present.
func Role(ctx context.Context) (string, bool) {
	v := ctx.Value(roleKey)
	if v == nil {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}
