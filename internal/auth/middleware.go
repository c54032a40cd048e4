package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// unauthorizedBody is the 401 payload.
const unauthorizedBody = `{"detail":"Invalid or missing API key"}`

// Middleware rejects requests without a valid API key or bearer JWT.
// Credentials are read from Authorization: Bearer, X-API-Key, or the
// access_token query parameter for WebSocket clients that cannot set
// headers. When the service is disabled every request passes.
func Middleware(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !service.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := service.Authenticate(extractCredential(r))
			if err != nil {
				logger.Warn("authentication failed", "path", r.URL.Path, "error", err)
				Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// Unauthorized writes the standard 401 response.
func Unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

func extractCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
