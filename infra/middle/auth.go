package middle

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/akoun-dev/montoit-sub002/infra/config"
	"github.com/akoun-dev/montoit-sub002/infra/response"
)

// AuthMiddleware validates API key authentication for the admin and
// outbound-notification routes. Webhook routes are not behind it: their
// authentication is the payload signature. The key comparison is
// constant time, same policy as the webhook verifier.
func AuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := config.GetAppConfig().APIKey
			if expected == "" {
				response.Error(w, http.StatusInternalServerError, "API key not configured", nil)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Error(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			apiKey, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Invalid authorization format. Use: Bearer <api_key>", nil)
				return
			}

			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
				response.Error(w, http.StatusUnauthorized, "Invalid API key", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
