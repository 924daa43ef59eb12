package middleware

import (
	"crypto/subtle"
	"net/http"
)

// HeaderName carries the shared service key on internal API calls.
const HeaderName = "X-Service-Key"

// AuthMiddleware guards the internal token API. Callers are trusted
// backend services, not browsers, so auth is a shared secret rather
// than a session cookie.
type AuthMiddleware struct {
	key string
}

func NewAuthMiddleware(key string) *AuthMiddleware {
	return &AuthMiddleware{key: key}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.key == "" {
			http.Error(w, "service key not configured", http.StatusServiceUnavailable)
			return
		}

		got := r.Header.Get(HeaderName)
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
