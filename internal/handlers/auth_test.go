package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/internal/models"
)

func TestLogin_RedirectsToRoleHome(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	env.createUser(t, "rev@ioea.eu", "ReviewPass1", auth.RoleReviewer)

	tests := []struct {
		email, password, want string
	}{
		{"admin@ioea.eu", "AdminPass1", "/auth/submissions"},
		{"  REV@ioea.eu ", "ReviewPass1", "/auth/reviewer"},
	}
	for _, tt := range tests {
		rec := env.do(request{method: http.MethodPost, path: "/auth/login",
			form: url.Values{"email": {tt.email}, "password": {tt.password}}})
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("%s: status %d", tt.email, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != tt.want {
			t.Errorf("%s: Location = %q, want %q", tt.email, loc, tt.want)
		}
		if sessionCookie(rec) == nil {
			t.Errorf("%s: no cookie", tt.email)
		}
	}
}

func TestLogin_JSONReturnsRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "rev@ioea.eu", "ReviewPass1", auth.RoleReviewer)

	rec := env.do(request{method: http.MethodPost, path: "/auth/login", json: true,
		form: url.Values{"email": {"rev@ioea.eu"}, "password": {"ReviewPass1"}}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["redirect"] != "/auth/reviewer" {
		t.Errorf("redirect = %q", body["redirect"])
	}
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	env.createUser(t, "pupil@ioea.eu", "PupilPass1", auth.RoleStudent)

	tests := []struct {
		name     string
		form     url.Values
		wantCode int
		wantText string
	}{
		{"missing fields", url.Values{"email": {"admin@ioea.eu"}}, http.StatusBadRequest, "required"},
		{"wrong password", url.Values{"email": {"admin@ioea.eu"}, "password": {"nope"}}, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown email", url.Values{"email": {"ghost@ioea.eu"}, "password": {"AdminPass1"}}, http.StatusUnauthorized, "Invalid credentials"},
		{"student on staff login", url.Values{"email": {"pupil@ioea.eu"}, "password": {"PupilPass1"}}, http.StatusForbidden, "Access denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(request{method: http.MethodPost, path: "/auth/login", form: tt.form})
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantText) {
				t.Errorf("body lacks %q", tt.wantText)
			}
			if sessionCookie(rec) != nil {
				t.Error("cookie set on rejected login")
			}
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	form := url.Values{"email": {"admin@ioea.eu"}, "password": {"wrong"}}

	for i := 0; i < 5; i++ {
		if rec := env.do(request{method: http.MethodPost, path: "/auth/login", form: form}); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d", i+1, rec.Code)
		}
	}
	rec := env.do(request{method: http.MethodPost, path: "/auth/login",
		form: url.Values{"email": {"admin@ioea.eu"}, "password": {"AdminPass1"}}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	if !strings.Contains(rec.Body.String(), "Too many attempts. Please try again in 15 minutes.") {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestLogin_SuccessResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	bad := url.Values{"email": {"admin@ioea.eu"}, "password": {"wrong"}}

	for i := 0; i < 4; i++ {
		env.do(request{method: http.MethodPost, path: "/auth/login", form: bad})
	}
	env.signIn(t, "admin@ioea.eu", "AdminPass1")
	for i := 0; i < 5; i++ {
		if rec := env.do(request{method: http.MethodPost, path: "/auth/login", form: bad}); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d after success: status %d", i+1, rec.Code)
		}
	}
}

func TestStudentLogin_EmailOnly(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "pupil@ioea.eu", "", auth.RoleStudent)
	env.createUser(t, "rev@ioea.eu", "ReviewPass1", auth.RoleReviewer)

	rec := env.do(request{method: http.MethodPost, path: "/students/login", form: url.Values{"email": {"pupil@ioea.eu"}}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/students" {
		t.Fatalf("student: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	page := env.do(request{method: http.MethodGet, path: "/students", cookie: sessionCookie(rec)})
	if page.Code != http.StatusOK {
		t.Errorf("portal status %d", page.Code)
	}

	rec = env.do(request{method: http.MethodPost, path: "/students/login", form: url.Values{"email": {"rev@ioea.eu"}}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reviewer on student login: %d", rec.Code)
	}
}

func TestLogout_RevokesSession(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	c := env.signIn(t, "admin@ioea.eu", "AdminPass1")

	rec := env.do(request{method: http.MethodPost, path: "/auth/logout", cookie: c})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/login?message=logged_out" {
		t.Fatalf("logout: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if cleared := sessionCookie(rec); cleared == nil || cleared.MaxAge >= 0 {
		t.Error("cookie not cleared")
	}

	var count int64
	env.db.Model(&models.Session{}).Count(&count)
	if count != 0 {
		t.Errorf("%d sessions left", count)
	}
	rec = env.do(request{method: http.MethodGet, path: "/auth/profile", cookie: c})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != auth.LoginPath {
		t.Errorf("old cookie still works: %d", rec.Code)
	}
}

func TestLoginPage_SignedInStaffRedirected(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "admin@ioea.eu", "AdminPass1", auth.RoleAdmin)
	c := env.signIn(t, "admin@ioea.eu", "AdminPass1")

	rec := env.do(request{method: http.MethodGet, path: "/auth/login", cookie: c})
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/auth/submissions" {
		t.Errorf("got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rec = env.do(request{method: http.MethodGet, path: "/auth/login?message=password_reset"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Your password has been reset") {
		t.Errorf("anonymous login page: %d", rec.Code)
	}
}

func TestMustChangePassword_Enforced(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "new@ioea.eu", "TempPass12", auth.RoleReviewer)
	env.db.Model(&models.User{}).Where("id = ?", u.ID).Update("must_change_password", true)

	rec := env.do(request{method: http.MethodPost, path: "/auth/login",
		form: url.Values{"email": {"new@ioea.eu"}, "password": {"TempPass12"}}})
	if rec.Header().Get("Location") != "/auth/change-password" {
		t.Fatalf("login Location = %q", rec.Header().Get("Location"))
	}
	c := sessionCookie(rec)

	rec = env.do(request{method: http.MethodGet, path: "/auth/reviewer", cookie: c})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/change-password" {
		t.Fatalf("guard: %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = env.do(request{method: http.MethodPost, path: "/auth/change-password", cookie: c,
		form: url.Values{"password": {"short"}, "confirmPassword": {"short"}}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: %d", rec.Code)
	}

	rec = env.do(request{method: http.MethodPost, path: "/auth/change-password", cookie: c,
		form: url.Values{"password": {"BetterPass1"}, "confirmPassword": {"BetterPass1"}}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/auth/reviewer" {
		t.Fatalf("change: %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rec = env.do(request{method: http.MethodGet, path: "/auth/reviewer", cookie: c})
	if rec.Code != http.StatusOK {
		t.Errorf("after change: %d", rec.Code)
	}
	env.signIn(t, "new@ioea.eu", "BetterPass1")
}

func TestHome_UnauthenticatedGoesToLogin(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(request{method: http.MethodGet, path: "/auth"})
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != auth.LoginPath {
		t.Errorf("got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
