package auth

import (
	"context"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie holding the session JWT.
const CookieName = "token"

// contextKey is unexported so no other package can read or shadow the
// values this package puts in a request context.
type contextKey string

const userIDKey contextKey = "userID"

// unauthorizedBody matches the JSON envelope the handlers write. It is a
// literal because auth sits below the handler package.
const unauthorizedBody = `{"success":false,"error":"unauthorized","message":"Authentication required"}`

// RequireAuth rejects requests without a valid session with 401 and the
// JSON error envelope. On success the user ID is available through
// UserIDFromContext.
//
// The chain runs req → M1 → M2 → handler → M2 → M1 → resp, so this must
// be mounted before any handler that calls UserIDFromContext.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := TokenFromRequest(r)
			if raw == "" {
				writeUnauthorized(w)
				return
			}
			claims, err := tokens.Validate(raw)
			if err != nil {
				writeUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// TokenFromRequest returns the session token from the cookie, or from an
// "Authorization: Bearer" header for API clients. The cookie wins when
// both are present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// WithUserID stores the authenticated user ID in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user ID RequireAuth stored.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}
