package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/httpx"
	"github.com/ioea/academy/internal/metrics"
	"github.com/ioea/academy/ratelimit"
	"github.com/ioea/academy/validation"
)

// staffRoles may use the password login at /auth/login.
var staffRoles = []auth.Role{auth.RoleAdmin, auth.RoleProgramAdmin, auth.RoleReviewer}

var loginMessages = map[string]string{
	"password_reset": "Your password has been reset. You can now sign in.",
	"logged_out":     "You have been signed out.",
}

type AuthHandler struct {
	svc        *auth.Service
	limiter    ratelimit.Limiter
	logger     *slog.Logger
	trustProxy bool
}

func NewAuthHandler(svc *auth.Service, limiter ratelimit.Limiter, logger *slog.Logger, trustProxy bool) *AuthHandler {
	return &AuthHandler{svc: svc, limiter: limiter, logger: logger, trustProxy: trustProxy}
}

// Home sends the visitor to the landing page of their primary role.
func (h *AuthHandler) Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, auth.HomePath(auth.SessionFromContext(r.Context())), http.StatusFound)
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if sess := auth.SessionFromContext(r.Context()); auth.HasAnyRole(sess, staffRoles...) {
		http.Redirect(w, r, auth.HomePath(sess), http.StatusFound)
		return
	}
	render(w, r, h.logger, http.StatusOK, "login.html", map[string]any{
		"Title":   "Sign in",
		"Action":  "/auth/login",
		"Message": loginMessages[r.URL.Query().Get("message")],
	})
}

// Login checks email and password for admins, program admins and reviewers.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := auth.NormalizeEmail(r.FormValue("email"))
	password := r.FormValue("password")
	data := map[string]any{"Title": "Sign in", "Action": "/auth/login", "Email": email}

	v := validation.Violations{}
	validation.Required("email", email, v)
	validation.Required("password", password, v)
	if !v.Empty() {
		data["Error"] = "Email and password are required."
		respond(w, r, h.logger, http.StatusBadRequest, "login.html", data)
		return
	}

	key := "login:" + httpx.ClientIP(r, h.trustProxy) + ":" + email
	if !h.allow(w, r, key, "login.html", data) {
		return
	}

	id, err := h.svc.ValidateCredentials(r.Context(), email, password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		metrics.LoginFailures.Inc()
		h.logger.InfoContext(r.Context(), "login rejected", slog.String("email", email))
		data["Error"] = "Invalid credentials."
		respond(w, r, h.logger, http.StatusUnauthorized, "login.html", data)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "login failed", slog.String("error", err.Error()))
		data["Error"] = "Sign-in is temporarily unavailable. Please try again later."
		respond(w, r, h.logger, http.StatusServiceUnavailable, "login.html", data)
		return
	}
	if !auth.HasAnyRole(&auth.Session{Roles: id.Roles}, staffRoles...) {
		data["Error"] = "Access denied. Admin or reviewer role required."
		respond(w, r, h.logger, http.StatusForbidden, "login.html", data)
		return
	}

	_ = h.limiter.Reset(r.Context(), key)
	h.startSession(w, r, id)
}

func (h *AuthHandler) StudentLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess := auth.SessionFromContext(r.Context()); auth.HasRole(sess, auth.RoleStudent) {
		http.Redirect(w, r, "/students", http.StatusFound)
		return
	}
	render(w, r, h.logger, http.StatusOK, "login.html", map[string]any{
		"Title":     "Student sign in",
		"Action":    "/students/login",
		"EmailOnly": true,
	})
}

// StudentLogin signs a student in by email alone.
func (h *AuthHandler) StudentLogin(w http.ResponseWriter, r *http.Request) {
	email := auth.NormalizeEmail(r.FormValue("email"))
	data := map[string]any{"Title": "Student sign in", "Action": "/students/login", "EmailOnly": true, "Email": email}

	v := validation.Violations{}
	validation.Required("email", email, v)
	validation.Email("email", email, v)
	if !v.Empty() {
		data["Error"] = "A valid email is required."
		respond(w, r, h.logger, http.StatusBadRequest, "login.html", data)
		return
	}
	if !h.allow(w, r, "student-login:"+httpx.ClientIP(r, h.trustProxy), "login.html", data) {
		return
	}

	id, err := h.svc.ValidateEmailOnly(r.Context(), email, auth.RoleStudent)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		metrics.LoginFailures.Inc()
		data["Error"] = "Invalid credentials."
		respond(w, r, h.logger, http.StatusUnauthorized, "login.html", data)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "student login failed", slog.String("error", err.Error()))
		data["Error"] = "Sign-in is temporarily unavailable. Please try again later."
		respond(w, r, h.logger, http.StatusServiceUnavailable, "login.html", data)
		return
	}
	h.startSession(w, r, id)
}

// Logout revokes the current session. It always clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DestroySession(w, r); err != nil {
		h.logger.WarnContext(r.Context(), "logout: session not removed from store", slog.String("error", err.Error()))
	}
	redirect(w, r, auth.LoginPath+"?message=logged_out")
}

// startSession replaces any session on the request with one for id and
// redirects to the matching landing page.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, id *auth.Identity) {
	startSession(w, r, h.svc, h.logger, id)
}

func startSession(w http.ResponseWriter, r *http.Request, svc *auth.Service, logger *slog.Logger, id *auth.Identity) {
	if c, err := r.Cookie(auth.CookieName); err == nil {
		_ = svc.Destroy(r.Context(), c.Value)
	}
	if _, err := svc.CreateSession(w, r, id); err != nil {
		logger.ErrorContext(r.Context(), "create session", slog.String("error", err.Error()))
		http.Error(w, "Sign-in is temporarily unavailable.", http.StatusServiceUnavailable)
		return
	}
	logger.InfoContext(r.Context(), "session started", slog.Uint64("user_id", uint64(id.UserID)))
	if id.MustChangePassword {
		redirect(w, r, "/auth/change-password")
		return
	}
	redirect(w, r, homeFor(id))
}

func homeFor(id *auth.Identity) string {
	return auth.HomePath(&auth.Session{Roles: id.Roles, Variant: id.Variant})
}

// allow counts an attempt against key and answers 429 when the window is
// exhausted. Limiter failures let the request through.
func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request, key, page string, data map[string]any) bool {
	return allow(w, r, h.limiter, h.logger, key, page, data)
}

func allow(w http.ResponseWriter, r *http.Request, l ratelimit.Limiter, logger *slog.Logger, key, page string, data map[string]any) bool {
	d, err := l.Allow(r.Context(), key)
	if err != nil {
		logger.WarnContext(r.Context(), "rate limiter error", slog.String("error", err.Error()))
	}
	if d.Allowed {
		return true
	}
	minutes := int((d.RetryAfter + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())+1))
	data["Error"] = fmt.Sprintf("Too many attempts. Please try again in %d minutes.", minutes)
	respond(w, r, logger, http.StatusTooManyRequests, page, data)
	return false
}
