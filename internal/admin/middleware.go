package admin

import (
	"net/http"
	"strings"

	"github.com/joltfit/strava-bridge/internal/db"
	"gorm.io/gorm"
)

// KeyAuth validates the operator key on the admin surface. The key is
// distinct from any end-user OAuth credential.
func KeyAuth(database *gorm.DB) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedKey := db.GetAdminKey(database)
			if expectedKey == "" {
				// No key bootstrapped yet (first-run scenario)
				next.ServeHTTP(w, r)
				return
			}

			// Bearer token
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				if strings.TrimPrefix(authHeader, "Bearer ") == expectedKey {
					next.ServeHTTP(w, r)
					return
				}
			}

			// x-api-key header (alternative)
			if r.Header.Get("x-api-key") == expectedKey {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": {"message": "Invalid admin key", "type": "authentication_error"}}`))
		})
	}
}
