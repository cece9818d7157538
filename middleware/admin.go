package middleware

import (
	"net/http"

	"github.com/wardauth/ward"
)

func RequireAdmin(engine *ward.Engine) func(http.Handler) http.Handler {
	return RequireRole(engine, ward.RoleAdmin)
}
