// Package policy wires the authorization gate and the handlers into one
// router configuration.
package policy

import (
	"log/slog"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/gate"
	"github.com/ioea/academy/internal/handlers"
	"github.com/ioea/academy/mail"
	"github.com/ioea/academy/ratelimit"
	"gorm.io/gorm"
)

// Resources guarded by the gate.
const (
	ResourceUsers       = "users"
	ResourceSubmissions = "submissions"
	ResourceReviews     = "reviews"
	ResourceProgram     = "program"
	ResourcePortal      = "portal"
	// ResourceImpersonation guards admin login-as.
	ResourceImpersonation = "impersonation"
)

// Deps are the collaborators the handlers share.
type Deps struct {
	DB      *gorm.DB
	Service *auth.Service
	Mailer  mail.Sender
	Logger  *slog.Logger
	// LoginLimiter counts sign-in attempts, ResetLimiter forgot-password
	// requests.
	LoginLimiter ratelimit.Limiter
	ResetLimiter ratelimit.Limiter
	BaseURL      string
	TrustProxy   bool
}

// RouterConfig holds configured handlers and the gate for the application.
type RouterConfig struct {
	Gate    *gate.Gate[*auth.Session]
	Service *auth.Service

	AuthHandler     *handlers.AuthHandler
	PasswordHandler *handlers.PasswordHandler
	ProfileHandler  *handlers.ProfileHandler
	UsersHandler    *handlers.UsersHandler
	PortalHandler   *handlers.PortalHandler
}

// NewGate registers the role policy of every guarded resource.
func NewGate() *gate.Gate[*auth.Session] {
	g := gate.NewGate[*auth.Session]()
	g.Register(ResourceUsers, gate.NewRolePolicy().
		Allow(gate.ActionAny, auth.RoleAdmin))
	g.Register(ResourceSubmissions, gate.NewRolePolicy().
		Allow(gate.ActionAny, auth.RoleAdmin, auth.RoleProgramAdmin))
	g.Register(ResourceReviews, gate.NewRolePolicy().
		Allow(gate.ActionAny, auth.RoleAdmin).
		Allow(gate.ActionView, auth.RoleReviewer).
		Allow(gate.ActionList, auth.RoleReviewer).
		Allow(gate.ActionUpdate, auth.RoleReviewer))
	g.Register(ResourceProgram, gate.NewRolePolicy().
		Allow(gate.ActionAny, auth.RoleAdmin, auth.RoleProgramAdmin))
	g.Register(ResourcePortal, gate.NewRolePolicy().
		Allow(gate.ActionAny, auth.RoleAdmin).
		Allow(gate.ActionView, auth.RoleStudent))
	g.Register(ResourceImpersonation, gate.NewRolePolicy().
		Allow(gate.ActionImpersonate, auth.RoleAdmin))
	return g
}

// NewRouterConfig creates a fully configured router setup.
func NewRouterConfig(d Deps) *RouterConfig {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = ratelimit.NewMemoryLimiter("login", ratelimit.DefaultLimit, ratelimit.DefaultWindow, nil)
	}
	if d.ResetLimiter == nil {
		d.ResetLimiter = ratelimit.NewMemoryLimiter("forgot", ratelimit.DefaultLimit, ratelimit.DefaultWindow, nil)
	}
	if d.Mailer == nil {
		d.Mailer = &mail.LogSender{Logger: d.Logger}
	}

	return &RouterConfig{
		Gate:            NewGate(),
		Service:         d.Service,
		AuthHandler:     handlers.NewAuthHandler(d.Service, d.LoginLimiter, d.Logger, d.TrustProxy),
		PasswordHandler: handlers.NewPasswordHandler(d.Service, d.ResetLimiter, d.Mailer, d.Logger, d.BaseURL, d.TrustProxy),
		ProfileHandler:  handlers.NewProfileHandler(d.DB, d.Service, d.Mailer, d.Logger, d.BaseURL),
		UsersHandler:    handlers.NewUsersHandler(d.DB, d.Service, d.Mailer, d.Logger, d.BaseURL),
		PortalHandler:   handlers.NewPortalHandler(d.Logger),
	}
}
