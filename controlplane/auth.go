package controlplane

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// bearerAuth guards mutating control-plane routes with an HS256 bearer
// token signed by the configured key.
func bearerAuth(key []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, http.StatusUnauthorized, "missing_token", "bearer token required")
				return
			}

			_, err := jwt.Parse(strings.TrimSpace(token), func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return key, nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
