package authz

import (
	"net/http"

	"github.com/stanstork/medequip-events/internal/models"
)

// RequireRole returns a middleware that lets the request through when the
// requester holds any of the given roles.
func RequireRole(allowed ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, ok := RolesFromRequest(r)
			if !ok || !(models.User{Roles: roles}).HasRole(allowed...) {
				http.Error(w, "insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoleHandler applies the role middleware inline when registering routes.
func RequireRoleHandler(next http.Handler, allowed ...models.UserRole) http.Handler {
	return RequireRole(allowed...)(next)
}
