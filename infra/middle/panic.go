package middle

import (
	"net/http"
	"runtime/debug"

	"github.com/akoun-dev/montoit-sub002/infra/logger"
	"github.com/akoun-dev/montoit-sub002/infra/response"
)

// PanicRecoveryMiddleware converts panics into 500 responses instead of
// killing the process.
func PanicRecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Panic recovered in HTTP handler", nil, logger.LogContext{
						Fields: map[string]any{
							"panic":  rec,
							"path":   r.URL.Path,
							"method": r.Method,
							"stack":  string(debug.Stack()),
						},
					})
					response.Error(w, http.StatusInternalServerError, "Internal server error", nil)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
