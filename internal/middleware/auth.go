package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/alertdeck/alertdeck/internal/api"
)

// TokenAuth guards the ingestion endpoints with a static bearer token.
// An empty token disables the check, which is the expected setup when an
// upstream proxy terminates authentication.
type TokenAuth struct {
	token     string
	skipPaths map[string]bool
}

// NewTokenAuth creates the middleware. skipPaths are exact-match paths
// that bypass the check (health probes, metrics).
func NewTokenAuth(token string, skipPaths ...string) *TokenAuth {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &TokenAuth{token: token, skipPaths: skip}
}

// Enabled reports whether a token is configured.
func (t *TokenAuth) Enabled() bool { return t.token != "" }

// Wrap wraps a handler with the token check.
func (t *TokenAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.token == "" || t.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		presented := extractBearer(r)
		if presented == "" {
			api.RespondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(t.token)) != 1 {
			log.Printf("TokenAuth: rejected request from %s", r.RemoteAddr)
			api.RespondError(w, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WrapFunc wraps an http.HandlerFunc with the token check.
func (t *TokenAuth) WrapFunc(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Wrap(next).ServeHTTP(w, r)
	}
}

func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
