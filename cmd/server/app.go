package main

import (
	"log/slog"
	"net/http"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/gate"
	"github.com/ioea/academy/httpx"
	"github.com/ioea/academy/internal/handlers"
	"github.com/ioea/academy/internal/metrics"
	"github.com/ioea/academy/internal/middleware"
	"github.com/ioea/academy/internal/policy"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	db        *gorm.DB
	routerCfg *policy.RouterConfig
	handler   http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *policy.RouterConfig, logger *slog.Logger, trustProxy bool) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	app.setupRoutes()

	// Outermost first: request log, session, password-change redirect.
	var h http.Handler = app.mux
	h = handlers.EnforcePasswordChange(h)
	h = routerCfg.Service.Middleware(h)
	h = middleware.RequestLogger(logger, trustProxy)(h)
	app.handler = h
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

func (a *App) setupRoutes() {
	// Public
	ah := a.routerCfg.AuthHandler
	ph := a.routerCfg.PasswordHandler
	prof := a.routerCfg.ProfileHandler

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.Handle("GET /metrics", metrics.Handler())
	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/auth", http.StatusFound)
	})
	a.mux.HandleFunc("GET /auth", ah.Home)
	a.mux.HandleFunc("GET /auth/login", ah.LoginPage)
	a.mux.HandleFunc("POST /auth/login", ah.Login)
	a.mux.HandleFunc("POST /auth/logout", ah.Logout)
	a.mux.HandleFunc("GET /students/login", ah.StudentLoginPage)
	a.mux.HandleFunc("POST /students/login", ah.StudentLogin)

	a.mux.HandleFunc("GET /auth/forgot-password", ph.ForgotPage)
	a.mux.HandleFunc("POST /auth/forgot-password", ph.Forgot)
	a.mux.HandleFunc("GET /auth/reset-password", ph.ResetPage)
	a.mux.HandleFunc("POST /auth/reset-password", ph.Reset)
	// The token in the link is the credential.
	a.mux.HandleFunc("GET /auth/verify-email", prof.VerifyEmail)

	// Signed in
	a.mux.Handle("GET /auth/change-password", auth.RequireAuth(http.HandlerFunc(ph.ChangePage)))
	a.mux.Handle("POST /auth/change-password", auth.RequireAuth(http.HandlerFunc(ph.Change)))
	a.mux.Handle("GET /auth/profile", auth.RequireAuth(http.HandlerFunc(prof.Show)))
	a.mux.Handle("POST /auth/profile", auth.RequireAuth(http.HandlerFunc(prof.Update)))
	a.mux.Handle("POST /auth/profile/password", auth.RequireAuth(http.HandlerFunc(prof.ChangePassword)))

	// Role portals
	pt := a.routerCfg.PortalHandler
	a.mux.Handle("GET /auth/submissions", a.require(policy.ResourceSubmissions, gate.ActionList)(pt.Submissions()))
	a.mux.Handle("GET /auth/reviewer", a.require(policy.ResourceReviews, gate.ActionList)(pt.Reviewer()))
	a.mux.Handle("GET /program-admin", a.require(policy.ResourceProgram, gate.ActionView)(pt.ProgramAdmin()))
	a.mux.Handle("GET /students", a.require(policy.ResourcePortal, gate.ActionView)(pt.Students()))

	// User administration
	uh := a.routerCfg.UsersHandler
	a.mux.Handle("GET /auth/users", a.require(policy.ResourceUsers, gate.ActionList)(http.HandlerFunc(uh.List)))
	a.mux.Handle("POST /auth/users", a.require(policy.ResourceUsers, gate.ActionCreate)(http.HandlerFunc(uh.Create)))
	a.mux.Handle("POST /auth/users/{id}", a.require(policy.ResourceUsers, gate.ActionUpdate)(http.HandlerFunc(uh.Update)))
	a.mux.Handle("POST /auth/users/{id}/reset-password", a.require(policy.ResourceUsers, gate.ActionUpdate)(http.HandlerFunc(uh.ResetPassword)))
	a.mux.Handle("POST /auth/users/{id}/delete", a.require(policy.ResourceUsers, gate.ActionDelete)(http.HandlerFunc(uh.Delete)))
	a.mux.Handle("DELETE /auth/users/{id}", a.require(policy.ResourceUsers, gate.ActionDelete)(http.HandlerFunc(uh.Delete)))
	a.mux.Handle("POST /auth/users/{id}/login-as", a.require(policy.ResourceImpersonation, gate.ActionImpersonate)(http.HandlerFunc(uh.LoginAs)))
}

// require wraps a handler with the gate check for resource and action.
func (a *App) require(resource string, action gate.Action) func(http.Handler) http.Handler {
	return gate.Require(a.routerCfg.Gate, resource, action)
}

func (a *App) healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "session_store_degraded": a.routerCfg.Service.Degraded()}
	code := http.StatusOK
	if sqlDB, err := a.db.DB(); err != nil || sqlDB.PingContext(r.Context()) != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
		code = http.StatusServiceUnavailable
	}
	httpx.JSON(w, code, status)
}
