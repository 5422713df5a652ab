package middleware

import (
	"net/http"
	"slices"

	fleetAuth "github.com/MrEthical07/fleetAuth"
)

// RequireRole admits requests whose validated token carries at least one of
// roles. It must run inside Guard.
func RequireRole(roles ...fleetAuth.Role) func(http.Handler) http.Handler {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = r.String()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := ValidationFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, have := range res.Roles {
				if slices.Contains(allowed, have) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}
