// ABOUTME: HTTP middleware for JWT authentication on the operator API surface
// ABOUTME: Extracts the bearer token from the Authorization header and verifies it

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware creates an HTTP middleware that extracts and validates
// JWT bearer tokens. When verifier is nil, auth is disabled and every
// request passes through; the caller is expected to have logged a warning
// about that at startup.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("token verification failed", "error", err)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			logger.Debug("request authenticated", "subject", subject)
			next.ServeHTTP(w, r)
		})
	}
}
