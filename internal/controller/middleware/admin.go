package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AdminOnly guards tenant provisioning with a shared secret. An empty
// configured secret disables the endpoint entirely rather than leaving it
// open.
func AdminOnly(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin endpoint disabled", http.StatusForbidden)
				return
			}

			header := r.Header.Get("Authorization")
			parts := strings.Fields(header)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w)
				return
			}
			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(secret)) != 1 {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
