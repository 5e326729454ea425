package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/internal/db"
	"github.com/ioea/academy/internal/models"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/ratelimit"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

func (m *recordingMailer) messages() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

var tokenInLink = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// lastToken returns the token of the newest link mailed to addr.
func (m *recordingMailer) lastToken(t *testing.T, addr string) string {
	t.Helper()
	msgs := m.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].To != addr {
			continue
		}
		if match := tokenInLink.FindStringSubmatch(msgs[i].HTML); match != nil {
			return match[1]
		}
	}
	t.Fatalf("no link mailed to %s", addr)
	return ""
}

type testEnv struct {
	db      *gorm.DB
	svc     *auth.Service
	mailer  *recordingMailer
	login   *ratelimit.MemoryLimiter
	forgot  *ratelimit.MemoryLimiter
	handler http.Handler
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open("file:handlers_"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.SeedRoles(gdb); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// newTestEnv wires the handlers the way the server does, with role guards
// standing in for the gate.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := setupTestDB(t)
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	env := &testEnv{
		db:     gdb,
		svc:    auth.NewService(auth.Options{Store: auth.NewGormStore(gdb), Logger: log, BcryptCost: 10}),
		mailer: &recordingMailer{},
		login:  ratelimit.NewMemoryLimiter("login", 5, 15*time.Minute, nil),
		forgot: ratelimit.NewMemoryLimiter("forgot", 5, 15*time.Minute, nil),
	}
	const base = "http://ioea.test"
	ah := NewAuthHandler(env.svc, env.login, log, false)
	ph := NewPasswordHandler(env.svc, env.forgot, env.mailer, log, base, false)
	prof := NewProfileHandler(gdb, env.svc, env.mailer, log, base)
	uh := NewUsersHandler(gdb, env.svc, env.mailer, log, base)
	pt := NewPortalHandler(log)

	admin := auth.RequireAnyRole(auth.RoleAdmin)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth", ah.Home)
	mux.HandleFunc("GET /auth/login", ah.LoginPage)
	mux.HandleFunc("POST /auth/login", ah.Login)
	mux.HandleFunc("POST /auth/logout", ah.Logout)
	mux.HandleFunc("GET /students/login", ah.StudentLoginPage)
	mux.HandleFunc("POST /students/login", ah.StudentLogin)
	mux.HandleFunc("GET /auth/forgot-password", ph.ForgotPage)
	mux.HandleFunc("POST /auth/forgot-password", ph.Forgot)
	mux.HandleFunc("GET /auth/reset-password", ph.ResetPage)
	mux.HandleFunc("POST /auth/reset-password", ph.Reset)
	mux.HandleFunc("GET /auth/verify-email", prof.VerifyEmail)
	mux.Handle("GET /auth/change-password", auth.RequireAuth(http.HandlerFunc(ph.ChangePage)))
	mux.Handle("POST /auth/change-password", auth.RequireAuth(http.HandlerFunc(ph.Change)))
	mux.Handle("GET /auth/profile", auth.RequireAuth(http.HandlerFunc(prof.Show)))
	mux.Handle("POST /auth/profile", auth.RequireAuth(http.HandlerFunc(prof.Update)))
	mux.Handle("POST /auth/profile/password", auth.RequireAuth(http.HandlerFunc(prof.ChangePassword)))
	mux.Handle("GET /auth/submissions", auth.RequireAnyRole(auth.RoleAdmin, auth.RoleProgramAdmin)(pt.Submissions()))
	mux.Handle("GET /auth/reviewer", auth.RequireAnyRole(auth.RoleReviewer, auth.RoleAdmin)(pt.Reviewer()))
	mux.Handle("GET /students", auth.RequireAnyRole(auth.RoleStudent, auth.RoleAdmin)(pt.Students()))
	mux.Handle("GET /auth/users", admin(http.HandlerFunc(uh.List)))
	mux.Handle("POST /auth/users", admin(http.HandlerFunc(uh.Create)))
	mux.Handle("POST /auth/users/{id}", admin(http.HandlerFunc(uh.Update)))
	mux.Handle("POST /auth/users/{id}/reset-password", admin(http.HandlerFunc(uh.ResetPassword)))
	mux.Handle("POST /auth/users/{id}/delete", admin(http.HandlerFunc(uh.Delete)))
	mux.Handle("POST /auth/users/{id}/login-as", admin(http.HandlerFunc(uh.LoginAs)))

	env.handler = env.svc.Middleware(EnforcePasswordChange(mux))
	return env
}

// createUser inserts an active user with roles. An empty password leaves
// the account without one.
func (e *testEnv) createUser(t *testing.T, email, password string, roles ...auth.Role) *models.User {
	t.Helper()
	u := models.User{Email: email, Name: "User " + email, Active: true}
	if password != "" {
		h, err := auth.HashPassword(password, 10)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		u.PasswordHash = &h
	}
	if err := e.db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	for _, r := range roles {
		var role models.Role
		if err := e.db.Where("name = ?", string(r)).First(&role).Error; err != nil {
			t.Fatalf("role %s: %v", r, err)
		}
		if err := e.db.Create(&models.UserRole{UserID: u.ID, RoleID: role.ID, GrantedAt: time.Now()}).Error; err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	return &u
}

type request struct {
	method string
	path   string
	form   url.Values
	cookie *http.Cookie
	json   bool
}

func (e *testEnv) do(req request) *httptest.ResponseRecorder {
	var body *strings.Reader
	if req.form != nil {
		body = strings.NewReader(req.form.Encode())
	} else {
		body = strings.NewReader("")
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if req.json {
		r.Header.Set("Accept", "application/json")
	}
	if req.cookie != nil {
		r.AddCookie(req.cookie)
	}
	r.RemoteAddr = "192.0.2.10:40000"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// signIn logs in through the form and returns the session cookie.
func (e *testEnv) signIn(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	rec := e.do(request{method: http.MethodPost, path: "/auth/login", form: url.Values{"email": {email}, "password": {password}}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login %s: status %d: %s", email, rec.Code, rec.Body.String())
	}
	c := sessionCookie(rec)
	if c == nil || c.Value == "" {
		t.Fatalf("login %s: no session cookie", email)
	}
	return c
}
