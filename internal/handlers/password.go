package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/httpx"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/ratelimit"
	"github.com/ioea/academy/validation"
)

const forgotSentMessage = "If an account with this email exists, a password reset link has been sent."

type PasswordHandler struct {
	svc        *auth.Service
	limiter    ratelimit.Limiter
	mailer     mail.Sender
	logger     *slog.Logger
	baseURL    string
	trustProxy bool
}

func NewPasswordHandler(svc *auth.Service, limiter ratelimit.Limiter, mailer mail.Sender, logger *slog.Logger, baseURL string, trustProxy bool) *PasswordHandler {
	return &PasswordHandler{svc: svc, limiter: limiter, mailer: mailer, logger: logger, baseURL: baseURL, trustProxy: trustProxy}
}

func (h *PasswordHandler) ForgotPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, h.logger, http.StatusOK, "forgot_password.html", map[string]any{"Title": "Forgot password"})
}

// Forgot mails a reset link. The answer is the same whether or not the
// address belongs to an account.
func (h *PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Forgot password"}
	if !allow(w, r, h.limiter, h.logger, "forgot:"+httpx.ClientIP(r, h.trustProxy), "forgot_password.html", data) {
		return
	}

	email := auth.NormalizeEmail(r.FormValue("email"))
	data["Email"] = email
	if email == "" {
		data["Error"] = "Email is required."
		respond(w, r, h.logger, http.StatusBadRequest, "forgot_password.html", data)
		return
	}

	raw, rcpt, err := h.svc.IssueResetTokenForEmail(r.Context(), email)
	switch {
	case err == nil:
		link := h.baseURL + "/auth/reset-password?token=" + url.QueryEscape(raw)
		mail.Deliver(r.Context(), h.mailer, h.logger, mail.PasswordResetMessage(rcpt.Email, rcpt.Name, link))
	case !errors.Is(err, auth.ErrNotFound):
		h.logger.ErrorContext(r.Context(), "issue reset token", slog.String("error", err.Error()))
	}

	data["Sent"] = true
	data["Message"] = forgotSentMessage
	respond(w, r, h.logger, http.StatusOK, "forgot_password.html", data)
}

func (h *PasswordHandler) ResetPage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Reset password"}
	token := r.URL.Query().Get("token")
	if token == "" {
		data["Error"] = "No reset token provided."
		render(w, r, h.logger, http.StatusBadRequest, "reset_password.html", data)
		return
	}
	if _, err := h.svc.ValidateResetToken(r.Context(), token); err != nil {
		data["Error"] = "This reset link is invalid or has expired."
		render(w, r, h.logger, http.StatusBadRequest, "reset_password.html", data)
		return
	}
	data["Valid"] = true
	data["Token"] = token
	render(w, r, h.logger, http.StatusOK, "reset_password.html", data)
}

// Reset consumes the token, stores the new password and signs the user out
// everywhere.
func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	password := r.FormValue("password")
	data := map[string]any{"Title": "Reset password", "Token": token, "Valid": true}

	if token == "" {
		data["Valid"] = false
		data["Error"] = "Missing reset token."
		respond(w, r, h.logger, http.StatusBadRequest, "reset_password.html", data)
		return
	}
	if msg := newPasswordProblem(password, r.FormValue("confirmPassword")); msg != "" {
		data["Error"] = msg
		respond(w, r, h.logger, http.StatusBadRequest, "reset_password.html", data)
		return
	}

	userID, err := h.svc.ResetPassword(r.Context(), token, password)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		data["Valid"] = false
		data["Error"] = "This reset link is invalid or has expired."
		respond(w, r, h.logger, http.StatusBadRequest, "reset_password.html", data)
		return
	case err != nil && userID == 0:
		h.logger.ErrorContext(r.Context(), "reset password", slog.String("error", err.Error()))
		data["Error"] = "The password could not be changed. Please try again later."
		respond(w, r, h.logger, http.StatusServiceUnavailable, "reset_password.html", data)
		return
	case err != nil:
		h.logger.WarnContext(r.Context(), "reset password: sessions not revoked",
			slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
	h.svc.ClearCookie(w)
	redirect(w, r, auth.LoginPath+"?message=password_reset")
}

func (h *PasswordHandler) ChangePage(w http.ResponseWriter, r *http.Request) {
	render(w, r, h.logger, http.StatusOK, "change_password.html", map[string]any{"Title": "Change password"})
}

// Change sets a new password for the signed-in user and clears the
// must-change-password flag.
func (h *PasswordHandler) Change(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	data := map[string]any{"Title": "Change password"}
	password := r.FormValue("password")
	if msg := newPasswordProblem(password, r.FormValue("confirmPassword")); msg != "" {
		data["Error"] = msg
		respond(w, r, h.logger, http.StatusBadRequest, "change_password.html", data)
		return
	}
	if err := h.svc.SetPassword(r.Context(), sess.UserID, password); err != nil {
		h.logger.ErrorContext(r.Context(), "change password", slog.String("error", err.Error()))
		data["Error"] = "The password could not be changed. Please try again later."
		respond(w, r, h.logger, http.StatusServiceUnavailable, "change_password.html", data)
		return
	}
	redirect(w, r, auth.HomePath(sess))
}

// newPasswordProblem returns the message for an unacceptable new password.
func newPasswordProblem(password, confirm string) string {
	v := validation.Violations{}
	validation.MinLength("password", password, auth.MinPasswordLength, v)
	validation.MaxBytes("passwordBytes", password, auth.MaxPasswordLength, v)
	validation.Equal("confirmPassword", confirm, password, v)
	switch {
	case v["password"] != "":
		return "Password must be at least 8 characters long."
	case v["passwordBytes"] != "":
		return "Password must be at most 72 bytes long."
	case v["confirmPassword"] != "":
		return "Passwords do not match."
	}
	return ""
}
