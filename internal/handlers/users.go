package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/httpx"
	"github.com/ioea/academy/internal/models"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/validation"
	"gorm.io/gorm"
)

// UsersHandler is the admin user management surface.
type UsersHandler struct {
	db      *gorm.DB
	svc     *auth.Service
	mailer  mail.Sender
	logger  *slog.Logger
	baseURL string
}

func NewUsersHandler(db *gorm.DB, svc *auth.Service, mailer mail.Sender, logger *slog.Logger, baseURL string) *UsersHandler {
	return &UsersHandler{db: db, svc: svc, mailer: mailer, logger: logger, baseURL: baseURL}
}

// userView is the listing shape shared by the page and the JSON API.
type userView struct {
	ID                 uint      `json:"id"`
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	Roles              []string  `json:"roles"`
	Active             bool      `json:"active"`
	MustChangePassword bool      `json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
}

func toUserView(u models.User) userView {
	v := userView{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Roles:              make([]string, 0, len(u.UserRoles)),
		Active:             u.Active,
		MustChangePassword: u.MustChangePassword,
		CreatedAt:          u.CreatedAt,
	}
	for _, ur := range u.UserRoles {
		v.Roles = append(v.Roles, ur.Role.Name)
	}
	return v
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, http.StatusOK, r.URL.Query().Get("message"), "")
}

func (h *UsersHandler) list(w http.ResponseWriter, r *http.Request, status int, message, errMsg string) {
	var users []models.User
	if err := h.db.WithContext(r.Context()).Preload("UserRoles.Role").Order("name").Find(&users).Error; err != nil {
		h.logger.ErrorContext(r.Context(), "list users", slog.String("error", err.Error()))
		h.fail(w, r, http.StatusServiceUnavailable, "Users could not be loaded.")
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, toUserView(u))
	}
	if httpx.WantsJSON(r) {
		if errMsg != "" {
			httpx.JSONError(w, status, errMsg, nil)
			return
		}
		httpx.JSON(w, status, map[string]any{"users": views, "message": message})
		return
	}
	render(w, r, h.logger, status, "users.html", map[string]any{
		"Title":   "Users",
		"Users":   views,
		"Roles":   auth.AllRoles(),
		"Message": message,
		"Error":   errMsg,
	})
}

// fail answers with an error without reloading the listing.
func (h *UsersHandler) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if httpx.WantsJSON(r) {
		httpx.JSONError(w, status, msg, nil)
		return
	}
	view := map[string]any{"Title": http.StatusText(status), "Error": msg}
	render(w, r, h.logger, status, "error.html", view)
}

// done reports success: JSON clients get the message, browsers return to
// the listing.
func (h *UsersHandler) done(w http.ResponseWriter, r *http.Request, status int, msg string, payload map[string]any) {
	if httpx.WantsJSON(r) {
		if payload == nil {
			payload = map[string]any{}
		}
		payload["message"] = msg
		httpx.JSON(w, status, payload)
		return
	}
	http.Redirect(w, r, "/auth/users?message="+url.QueryEscape(msg), http.StatusSeeOther)
}

func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// roleRows loads the role records named by roles.
func (h *UsersHandler) roleRows(tx *gorm.DB, roles []auth.Role) ([]models.Role, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	var rows []models.Role
	if err := tx.Where("name IN ?", names).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (h *UsersHandler) emailTaken(r *http.Request, email string, exceptID uint) (bool, error) {
	var count int64
	err := h.db.WithContext(r.Context()).Model(&models.User{}).
		Where("LOWER(email) = ? AND id <> ?", email, exceptID).Count(&count).Error
	return count > 0, err
}

// Create adds an account with a temporary password. The user must choose a
// new password at first sign-in.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	admin := auth.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid form.")
		return
	}
	name := strings.TrimSpace(r.PostForm.Get("name"))
	email := auth.NormalizeEmail(r.PostForm.Get("email"))
	roles := auth.ParseRoles(r.PostForm["roles"])

	v := validation.Violations{}
	validation.Required("name", name, v)
	validation.Required("email", email, v)
	validation.Email("email", email, v)
	if !v.Empty() || len(roles) == 0 {
		h.list(w, r, http.StatusBadRequest, "", "Name, a valid email and at least one role are required.")
		return
	}
	taken, err := h.emailTaken(r, email, 0)
	if err != nil {
		h.storeError(w, r, "create user", err)
		return
	}
	if taken {
		h.list(w, r, http.StatusConflict, "", "A user with this email already exists.")
		return
	}

	temp, err := auth.GenerateRandomPassword()
	if err != nil {
		h.storeError(w, r, "create user", err)
		return
	}
	hash, err := auth.HashPassword(temp, h.svc.Cost())
	if err != nil {
		h.storeError(w, r, "create user", err)
		return
	}

	user := models.User{Email: email, Name: name, PasswordHash: &hash, Active: true, MustChangePassword: true}
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return h.grantRoles(tx, user.ID, roles, admin.UserID)
	})
	if err != nil {
		h.storeError(w, r, "create user", err)
		return
	}
	h.logger.InfoContext(r.Context(), "user created",
		slog.Uint64("user_id", uint64(user.ID)), slog.Uint64("by", uint64(admin.UserID)))

	msg := "User created."
	if r.PostForm.Get("sendEmail") != "" {
		mail.Deliver(r.Context(), h.mailer, h.logger, mail.WelcomeMessage(email, name, temp, h.baseURL+auth.LoginPath))
		msg = "User created. A welcome email has been sent."
	}
	// The temporary password is returned once so the admin can pass it on
	// when no welcome mail is sent.
	h.done(w, r, http.StatusCreated, msg, map[string]any{"id": user.ID, "temporaryPassword": temp})
}

func (h *UsersHandler) grantRoles(tx *gorm.DB, userID uint, roles []auth.Role, by uint) error {
	rows, err := h.roleRows(tx, roles)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, role := range rows {
		granted := by
		if err := tx.Create(&models.UserRole{UserID: userID, RoleID: role.ID, GrantedBy: &granted, GrantedAt: now}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Update changes the fields present in the form: name, email, active and
// roles. Deactivating an account signs it out everywhere.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	admin := auth.SessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		h.fail(w, r, http.StatusBadRequest, "Invalid user id.")
		return
	}
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, http.StatusBadRequest, "Invalid form.")
		return
	}

	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail(w, r, http.StatusNotFound, "User not found.")
			return
		}
		h.storeError(w, r, "update user", err)
		return
	}

	updates := map[string]any{}
	if _, set := r.PostForm["name"]; set {
		name := strings.TrimSpace(r.PostForm.Get("name"))
		if name == "" {
			h.fail(w, r, http.StatusBadRequest, "Name is required.")
			return
		}
		updates["name"] = name
	}
	if _, set := r.PostForm["email"]; set {
		email := auth.NormalizeEmail(r.PostForm.Get("email"))
		v := validation.Violations{}
		validation.Email("email", email, v)
		if email == "" || !v.Empty() {
			h.fail(w, r, http.StatusBadRequest, "A valid email is required.")
			return
		}
		if email != auth.NormalizeEmail(user.Email) {
			taken, err := h.emailTaken(r, email, user.ID)
			if err != nil {
				h.storeError(w, r, "update user", err)
				return
			}
			if taken {
				h.fail(w, r, http.StatusConflict, "A user with this email already exists.")
				return
			}
			updates["email"] = email
		}
	}
	deactivate := false
	if _, set := r.PostForm["active"]; set {
		active, err := strconv.ParseBool(r.PostForm.Get("active"))
		if err != nil {
			h.fail(w, r, http.StatusBadRequest, "Invalid active flag.")
			return
		}
		if !active && user.ID == admin.UserID {
			h.fail(w, r, http.StatusBadRequest, "You cannot deactivate your own account.")
			return
		}
		updates["active"] = active
		deactivate = !active && user.Active
	}
	_, replaceRoles := r.PostForm["roles"]
	roles := auth.ParseRoles(r.PostForm["roles"])

	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		if !replaceRoles {
			return nil
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserRole{}).Error; err != nil {
			return err
		}
		return h.grantRoles(tx, user.ID, roles, admin.UserID)
	})
	if err != nil {
		h.storeError(w, r, "update user", err)
		return
	}
	if deactivate {
		if err := h.svc.DestroyUserSessions(r.Context(), user.ID); err != nil {
			h.logger.WarnContext(r.Context(), "deactivate user: sessions not removed",
				slog.Uint64("user_id", uint64(user.ID)), slog.String("error", err.Error()))
		}
	}
	h.logger.InfoContext(r.Context(), "user updated",
		slog.Uint64("user_id", uint64(user.ID)), slog.Uint64("by", uint64(admin.UserID)))
	h.done(w, r, http.StatusOK, "User updated.", map[string]any{"id": user.ID})
}

// ResetPassword mails the user a reset link.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.fail(w, r, http.StatusBadRequest, "Invalid user id.")
		return
	}
	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail(w, r, http.StatusNotFound, "User not found.")
			return
		}
		h.storeError(w, r, "reset user password", err)
		return
	}
	raw, err := h.svc.IssueResetToken(r.Context(), user.ID)
	if err != nil {
		h.storeError(w, r, "reset user password", err)
		return
	}
	link := h.baseURL + "/auth/reset-password?token=" + url.QueryEscape(raw)
	mail.Deliver(r.Context(), h.mailer, h.logger, mail.PasswordResetMessage(user.Email, user.Name, link))
	h.done(w, r, http.StatusOK, "A password reset link has been sent to "+user.Email+".", nil)
}

// Delete removes an account together with its sessions, roles and tokens.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	admin := auth.SessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		h.fail(w, r, http.StatusBadRequest, "Invalid user id.")
		return
	}
	if id == admin.UserID {
		h.fail(w, r, http.StatusBadRequest, "You cannot delete your own account.")
		return
	}
	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.fail(w, r, http.StatusNotFound, "User not found.")
			return
		}
		h.storeError(w, r, "delete user", err)
		return
	}

	if err := h.svc.DestroyUserSessions(r.Context(), user.ID); err != nil {
		h.storeError(w, r, "delete user", err)
		return
	}
	err := h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&models.Session{}, &models.UserRole{}, &models.PasswordResetToken{}, &models.EmailChangeToken{}} {
			if err := tx.Where("user_id = ?", user.ID).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if err != nil {
		h.storeError(w, r, "delete user", err)
		return
	}
	h.logger.InfoContext(r.Context(), "user deleted",
		slog.Uint64("user_id", uint64(user.ID)), slog.Uint64("by", uint64(admin.UserID)))
	h.done(w, r, http.StatusOK, "User deleted.", nil)
}

// LoginAs replaces the admin's session with one for the target user.
func (h *UsersHandler) LoginAs(w http.ResponseWriter, r *http.Request) {
	admin := auth.SessionFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		h.fail(w, r, http.StatusBadRequest, "Invalid user id.")
		return
	}
	if id == admin.UserID {
		h.fail(w, r, http.StatusBadRequest, "You are already signed in as this user.")
		return
	}
	ident, err := h.svc.IdentityForUser(r.Context(), id)
	switch {
	case errors.Is(err, auth.ErrNotFound):
		h.fail(w, r, http.StatusNotFound, "User not found.")
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.fail(w, r, http.StatusBadRequest, "This account is deactivated.")
		return
	case err != nil:
		h.storeError(w, r, "login as", err)
		return
	}
	h.logger.InfoContext(r.Context(), "admin login as",
		slog.Uint64("admin_id", uint64(admin.UserID)), slog.Uint64("user_id", uint64(id)))
	startSession(w, r, h.svc, h.logger, ident)
}

func (h *UsersHandler) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op, slog.String("error", err.Error()))
	h.fail(w, r, http.StatusServiceUnavailable, "The change could not be saved. Please try again later.")
}
