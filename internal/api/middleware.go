// Package api implements the plantops HTTP surface using chi.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/daewon/plantops/internal/auth"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "session"

// Authenticator resolves session tokens. *auth.Service implements it.
type Authenticator interface {
	CurrentSession(token string) (*auth.Session, bool)
}

type sessionKey struct{}

// SessionFromContext returns the session attached by a guard.
func SessionFromContext(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*auth.Session)
	return s, ok
}

// sessionToken reads the token from the session cookie, falling back to an
// "Authorization: Bearer <token>" header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func requireSession(a Authenticator, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := a.CurrentSession(sessionToken(r))
			if !ok {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
		})
	}
}

// APIGuard answers 401 to requests without a live session.
func APIGuard(a Authenticator) func(http.Handler) http.Handler {
	return requireSession(a, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
	})
}

// PageGuard redirects requests without a live session to the login page,
// carrying the requested path so the user lands there after signing in.
func PageGuard(a Authenticator) func(http.Handler) http.Handler {
	return requireSession(a, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
	})
}

// LoginURL returns the login route with target as the redirect parameter.
func LoginURL(target string) string {
	return "/login?redirect=" + url.QueryEscape(target)
}

// SafeRedirect returns target if it is a local path other than the login
// page, and "/" otherwise. Control characters are rejected because browsers
// drop them, which can turn "/\t/host" into "//host".
func SafeRedirect(target string) string {
	if strings.ContainsFunc(target, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return "/"
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	if u.Path == "/login" {
		return "/"
	}
	return target
}
