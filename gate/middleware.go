package gate

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ioea/academy/auth"
)

// Require guards a route with g: the session attached by auth.Middleware must
// be allowed action on resource. Anonymous requests go to the login page (or
// get a 401 JSON); refused ones get a 403.
func Require(g *Gate[*auth.Session], resource string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := g.Authorize(r.Context(), auth.SessionFromContext(r.Context()), action, resource, nil)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, ErrUnauthenticated):
				auth.Unauthenticated(w, r)
			case errors.Is(err, ErrNoPolicyDefined):
				slog.ErrorContext(r.Context(), "no policy for guarded route",
					slog.String("resource", resource), slog.String("path", r.URL.Path))
				auth.Forbidden(w, r)
			default:
				auth.Forbidden(w, r)
			}
		})
	}
}
