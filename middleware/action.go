package middleware

import (
	"net/http"

	"github.com/wardauth/ward"
	"github.com/wardauth/ward/permission"
)

// RequireAction returns middleware that verifies the bearer token and then
// rejects principals whose role is not granted the named action with 403.
// A nil grants table denies everything.
func RequireAction(engine *ward.Engine, grants *permission.Grants, action string) func(http.Handler) http.Handler {
	guard := Guard(engine)
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || grants == nil || !grants.Allows(string(principal.Role), action) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
