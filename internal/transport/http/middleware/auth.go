package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	jwtinfra "github.com/guestlist-api/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*jwtinfra.Claims, error)
}

// SessionChecker reports whether a session is still enabled.
type SessionChecker interface {
	Active(ctx context.Context, sessionID string) (bool, error)
}

// Auth validates the Bearer JWT, rejects tokens whose session was ended and
// injects the claims into the request context. A nil verifier rejects every
// request. A nil checker skips the session lookup.
func Auth(verifier TokenVerifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "operator sign-in is not configured")
				return
			}
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
				return
			}
			claims, err := verifier.Verify(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			if sessions != nil {
				active, err := sessions.Active(r.Context(), claims.SessionID)
				if err != nil {
					slog.Error("session check failed", "session_id", claims.SessionID, "err", err)
					writeJSONError(w, http.StatusInternalServerError, "internal", "could not check session")
					return
				}
				if !active {
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "session ended")
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns ctx carrying claims.
func WithClaims(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}
