package middleware

import (
	"net/http"

	"github.com/familyshare/familyshare/internal/auth"
)

// RequireRole returns middleware that admits only callers holding role.
// Must be applied after Auth middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := auth.Identity(r.Context())
			if authCtx == nil {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if authCtx.Role != role {
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
