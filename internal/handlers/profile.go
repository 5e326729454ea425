package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/internal/models"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/validation"
	"gorm.io/gorm"
)

type ProfileHandler struct {
	db      *gorm.DB
	svc     *auth.Service
	mailer  mail.Sender
	logger  *slog.Logger
	baseURL string
}

func NewProfileHandler(db *gorm.DB, svc *auth.Service, mailer mail.Sender, logger *slog.Logger, baseURL string) *ProfileHandler {
	return &ProfileHandler{db: db, svc: svc, mailer: mailer, logger: logger, baseURL: baseURL}
}

func (h *ProfileHandler) data(sess *auth.Session) map[string]any {
	return map[string]any{"Title": "Your profile", "Name": sess.Name, "Email": sess.Email}
}

func (h *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	render(w, r, h.logger, http.StatusOK, "profile.html", h.data(auth.SessionFromContext(r.Context())))
}

// Update saves the display name. A new email address is not applied until
// the link mailed to it is followed.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	data := h.data(sess)
	name := strings.TrimSpace(r.FormValue("name"))
	email := auth.NormalizeEmail(r.FormValue("email"))
	data["Name"], data["Email"] = name, email

	v := validation.Violations{}
	validation.Required("name", name, v)
	validation.Required("email", email, v)
	validation.Email("email", email, v)
	if !v.Empty() {
		data["Error"] = "Name and a valid email are required."
		respond(w, r, h.logger, http.StatusBadRequest, "profile.html", data)
		return
	}

	if email != auth.NormalizeEmail(sess.Email) {
		var count int64
		if err := h.db.WithContext(r.Context()).Model(&models.User{}).
			Where("LOWER(email) = ? AND id <> ?", email, sess.UserID).Count(&count).Error; err != nil {
			h.serverError(w, r, data, err)
			return
		}
		if count > 0 {
			data["Error"] = "This email is already in use."
			respond(w, r, h.logger, http.StatusBadRequest, "profile.html", data)
			return
		}
	}

	if err := h.db.WithContext(r.Context()).Model(&models.User{}).Where("id = ?", sess.UserID).
		Update("name", name).Error; err != nil {
		h.serverError(w, r, data, err)
		return
	}

	msg := "Profile updated."
	if email != auth.NormalizeEmail(sess.Email) {
		raw, err := h.svc.IssueEmailChangeToken(r.Context(), sess.UserID, email)
		if err != nil {
			h.serverError(w, r, data, err)
			return
		}
		link := h.baseURL + "/auth/verify-email?token=" + url.QueryEscape(raw)
		mail.Deliver(r.Context(), h.mailer, h.logger, mail.EmailChangeMessage(email, name, link))
		data["Email"] = sess.Email
		msg = "Profile updated. A confirmation link has been sent to " + email + "."
	}
	data["Message"] = msg
	respond(w, r, h.logger, http.StatusOK, "profile.html", data)
}

// ChangePassword requires the current password.
func (h *ProfileHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	data := h.data(sess)
	current := r.FormValue("currentPassword")
	password := r.FormValue("password")

	fail := func(msg string) {
		data["Error"] = msg
		respond(w, r, h.logger, http.StatusBadRequest, "profile.html", data)
	}
	if current == "" {
		fail("Current password is required.")
		return
	}
	if msg := newPasswordProblem(password, r.FormValue("confirmPassword")); msg != "" {
		fail(msg)
		return
	}
	err := h.svc.CheckPassword(r.Context(), sess.UserID, current)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		fail("Current password is incorrect.")
		return
	}
	if err == nil {
		err = h.svc.SetPassword(r.Context(), sess.UserID, password)
	}
	if err != nil {
		h.serverError(w, r, data, err)
		return
	}
	data["Message"] = "Password changed."
	respond(w, r, h.logger, http.StatusOK, "profile.html", data)
}

// VerifyEmail applies a pending email change.
func (h *ProfileHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Confirm email"}
	token := r.URL.Query().Get("token")
	if token == "" {
		data["Error"] = "Missing verification token."
		render(w, r, h.logger, http.StatusBadRequest, "verify_email.html", data)
		return
	}
	change, err := h.svc.ConfirmEmailChange(r.Context(), token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		data["Error"] = "This link is invalid or has expired."
		render(w, r, h.logger, http.StatusBadRequest, "verify_email.html", data)
		return
	case errors.Is(err, auth.ErrEmailTaken):
		data["Error"] = "This email address is already in use by another account."
		render(w, r, h.logger, http.StatusConflict, "verify_email.html", data)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "confirm email change", slog.String("error", err.Error()))
		data["Error"] = "The address could not be changed. Please try again later."
		render(w, r, h.logger, http.StatusServiceUnavailable, "verify_email.html", data)
		return
	}
	data["Message"] = "Email address confirmed."
	data["NewEmail"] = change.NewEmail
	render(w, r, h.logger, http.StatusOK, "verify_email.html", data)
}

func (h *ProfileHandler) serverError(w http.ResponseWriter, r *http.Request, data map[string]any, err error) {
	h.logger.ErrorContext(r.Context(), "profile update", slog.String("error", err.Error()))
	data["Error"] = "Your changes could not be saved. Please try again later."
	respond(w, r, h.logger, http.StatusServiceUnavailable, "profile.html", data)
}
