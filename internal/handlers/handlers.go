// Package handlers serves the account pages: login and logout, password
// reset and change, profile, user administration and the role portals.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/httpx"
	"github.com/ioea/academy/view"
)

// render writes a page and logs template failures.
func render(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, page string, data map[string]any) {
	if err := view.Render(w, r, status, page, data); err != nil {
		logger.ErrorContext(r.Context(), "render page", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// respond answers a form post: JSON clients get {"error": msg} or
// {"message": msg}; browsers get the page re-rendered with data.
func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, page string, data map[string]any) {
	if httpx.WantsJSON(r) {
		if msg, ok := data["Error"].(string); ok && msg != "" {
			httpx.JSONError(w, status, msg, nil)
			return
		}
		httpx.JSON(w, status, map[string]any{"message": data["Message"]})
		return
	}
	render(w, r, logger, status, page, data)
}

// redirect sends browsers to path with 303 and JSON clients a body naming it.
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]string{"redirect": path})
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// passwordChangePaths stay reachable while a password change is pending.
var passwordChangePaths = map[string]bool{
	"/auth/change-password": true,
	"/auth/logout":          true,
}

// EnforcePasswordChange sends users flagged must-change-password to the
// change form before anything else.
func EnforcePasswordChange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.SessionFromContext(r.Context())
		if sess != nil && sess.MustChangePassword && !passwordChangePaths[r.URL.Path] &&
			!strings.HasPrefix(r.URL.Path, "/static/") {
			if httpx.WantsJSON(r) {
				httpx.JSONError(w, http.StatusForbidden, "password_change_required", nil)
				return
			}
			http.Redirect(w, r, "/auth/change-password", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
