// ABOUTME: HTTP middleware for token authentication on API endpoints
// ABOUTME: Reads the token query parameter or a Bearer header and adds the principal to context

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// extractToken returns the request's API token. The "token" query parameter
// takes precedence over an "Authorization: Bearer" header.
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authHeader := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// HTTPAuthMiddleware rejects requests whose token verifier does not accept.
// Accepted requests carry an AuthContext. A nil deny writes a plain 401.
func HTTPAuthMiddleware(verifier TokenVerifier, deny DenyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deny == nil {
		deny = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				logger.Info("http auth failure",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"reason", "token_missing")
				deny(w, r, ErrMissingToken)
				return
			}

			principalID, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("http auth failure",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
					"reason", "token_verification_failed",
					"fingerprint", Fingerprint(token),
					"error", err)
				deny(w, r, err)
				return
			}

			authCtx := &AuthContext{PrincipalID: principalID}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
