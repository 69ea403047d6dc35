// Package contextkeys carries the authenticated identity through request contexts.
package contextkeys

import "context"

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	UserID    contextKey = "userID"
	UserEmail contextKey = "userEmail"
	UserRole  contextKey = "userRole"
)

func str(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// UserIDFrom returns the authenticated user id, or "" when unauthenticated.
func UserIDFrom(ctx context.Context) string { return str(ctx, UserID) }

// RoleFrom returns the authenticated user's role, or "".
func RoleFrom(ctx context.Context) string { return str(ctx, UserRole) }
