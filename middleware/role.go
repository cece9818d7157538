package middleware

import (
	"net/http"

	"github.com/wardauth/ward"
)

// RequireRole returns middleware that verifies the bearer token and then
// rejects principals whose role differs from want with 403.
func RequireRole(engine *ward.Engine, want ward.Role) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || principal.Role != want {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
