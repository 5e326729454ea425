// Package auth issues, resolves and revokes login sessions and answers role
// questions for route guards.
//
// Sessions are opaque 256-bit tokens carried in an HTTP-only cookie; the
// database keeps only their SHA-256 hash. When the database cannot take a
// session write the session is kept in an injected in-memory cache instead
// and is lost on restart.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/ioea/academy/httpx"
)

type ctxKey string

const (
	// CookieName is the session cookie.
	CookieName = "ioea_session"

	sessionCtxKey = ctxKey("session")
	// LoginPath is where unauthenticated requests are sent.
	LoginPath = "/auth/login"
)

// CreateSession binds id to a new session and sets the cookie on w.
// The raw token is returned so tests and callers can reuse it; it is never
// stored server-side.
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request, id *Identity) (string, error) {
	raw, sess, err := s.Create(r.Context(), id)
	if err != nil {
		return "", err
	}
	s.setCookie(w, raw, sess.ExpiresAt)
	return raw, nil
}

// ResolveSession reads the cookie from r and resolves it. Stale cookies are
// cleared on w. A nil result means "not authenticated", including when the
// store is unreachable.
func (s *Service) ResolveSession(w http.ResponseWriter, r *http.Request) *Session {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	sess, stale := s.Resolve(r.Context(), c.Value)
	if stale {
		s.ClearCookie(w)
	}
	return sess
}

// DestroySession revokes the session named by r's cookie and clears it.
func (s *Service) DestroySession(w http.ResponseWriter, r *http.Request) error {
	var err error
	if c, cerr := r.Cookie(CookieName); cerr == nil {
		err = s.Destroy(r.Context(), c.Value)
	}
	s.ClearCookie(w)
	return err
}

func (s *Service) setCookie(w http.ResponseWriter, raw string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    raw,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.ttl / time.Second),
		Expires:  expires,
	})
}

// ClearCookie deletes the session cookie.
func (s *Service) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithSession stores the resolved session in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, s)
}

// SessionFromContext returns the session attached by Middleware, or nil.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionCtxKey).(*Session)
	return s
}

// Middleware resolves the session once per request and attaches it to the
// request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess := s.ResolveSession(w, r); sess != nil {
			r = r.WithContext(WithSession(r.Context(), sess))
		}
		next.ServeHTTP(w, r)
	})
}

// Unauthenticated answers a request that has no valid session: 401 JSON for
// API clients, otherwise a redirect to the login page.
func Unauthenticated(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

// Forbidden answers an authenticated request that lacks the required role.
func Forbidden(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
		return
	}
	http.Error(w, "Access denied", http.StatusForbidden)
}

// RequireAuth rejects requests without a session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			Unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAnyRole rejects requests whose session holds none of roles.
func RequireAnyRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil {
				Unauthenticated(w, r)
				return
			}
			if !HasAnyRole(sess, roles...) {
				Forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
