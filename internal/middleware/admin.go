package middleware

import (
	"net/http"

	"github.com/gigmarket/backend/internal/contextkeys"
	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/handler"
)

// AdminOnly middleware ensures the user has the admin role.
// Must be used AFTER Auth middleware which sets contextkeys.UserRole in context.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.RoleFrom(r.Context()) != string(domain.RoleAdmin) {
			handler.Fail(w, http.StatusForbidden, "forbidden: admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
