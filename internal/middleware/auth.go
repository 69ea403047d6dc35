package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gigmarket/backend/internal/contextkeys"
	"github.com/gigmarket/backend/internal/domain"
	"github.com/gigmarket/backend/internal/handler"
)

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	VerifyToken(token string) (*domain.JWTClaims, error)
}

// Auth creates a JWT authentication middleware.
func Auth(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				handler.Fail(w, http.StatusUnauthorized, "no token provided")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				handler.Fail(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimSpace(parts[1]))
			if err != nil {
				handler.Fail(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores the authenticated identity using typed keys.
func WithClaims(ctx context.Context, claims *domain.JWTClaims) context.Context {
	ctx = context.WithValue(ctx, contextkeys.UserID, claims.Sub)
	ctx = context.WithValue(ctx, contextkeys.UserEmail, claims.Email)
	return context.WithValue(ctx, contextkeys.UserRole, claims.Role)
}
