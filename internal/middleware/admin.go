package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/goccy/go-json"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminGate requires the X-Admin-Token header to match token. An empty token
// leaves admin routes open.
func AdminGate(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"message": "Admin token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
