package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ioea/academy/internal/metrics"
	"github.com/ioea/academy/internal/models"
)

const (
	// DefaultSessionTTL is the fixed session lifetime. It is not extended by activity.
	DefaultSessionTTL = 24 * time.Hour
	// DefaultResetTTL is the lifetime of a password reset link.
	DefaultResetTTL = time.Hour
	// DefaultEmailChangeTTL is the lifetime of an email verification link.
	DefaultEmailChangeTTL = 24 * time.Hour
)

// Session is the resolved view of a login session.
type Session struct {
	UserID             uint
	Email              string
	Name               string
	Roles              []Role
	ExpiresAt          time.Time
	MustChangePassword bool
	// Variant is nil for users without a known role.
	Variant Variant
	// Degraded is set when the session lives only in process memory.
	Degraded bool
}

// LegacyLabel returns the single-role label of the session's primary role,
// or "" when it has none.
func (s *Session) LegacyLabel() string {
	if s == nil || s.Variant == nil {
		return ""
	}
	return s.Variant.Label()
}

func (s *Session) clone() *Session {
	c := *s
	c.Roles = append([]Role(nil), s.Roles...)
	return &c
}

// Identity is a verified user ready to be bound to a new session.
type Identity struct {
	UserID             uint
	Email              string
	Name               string
	Roles              []Role
	MustChangePassword bool
	Variant            Variant
}

func identityFor(u *models.User, roles []Role) *Identity {
	return &Identity{
		UserID:             u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Roles:              roles,
		MustChangePassword: u.MustChangePassword,
		Variant:            variantFor(u, roles),
	}
}

// Options configures a Service. Store is required.
type Options struct {
	Store          Store
	Cache          *MemoryCache
	Logger         *slog.Logger
	SessionTTL     time.Duration
	ResetTTL       time.Duration
	EmailChangeTTL time.Duration
	// SecureCookie sets the Secure attribute (production, TLS).
	SecureCookie bool
	BcryptCost   int
	Now          func() time.Time
}

// Service issues, resolves and revokes sessions and one-time tokens.
type Service struct {
	store          Store
	cache          *MemoryCache
	logger         *slog.Logger
	ttl            time.Duration
	resetTTL       time.Duration
	emailChangeTTL time.Duration
	secure         bool
	cost           int
	now            func() time.Time
	degraded       atomic.Bool
}

// NewService builds a Service, filling unset options with defaults.
func NewService(opts Options) *Service {
	s := &Service{
		store:          opts.Store,
		cache:          opts.Cache,
		logger:         opts.Logger,
		ttl:            opts.SessionTTL,
		resetTTL:       opts.ResetTTL,
		emailChangeTTL: opts.EmailChangeTTL,
		secure:         opts.SecureCookie,
		cost:           opts.BcryptCost,
		now:            opts.Now,
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(DefaultCacheSize)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultSessionTTL
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}
	if s.emailChangeTTL <= 0 {
		s.emailChangeTTL = DefaultEmailChangeTTL
	}
	if s.cost < 10 {
		s.cost = DefaultBcryptCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.cache.now = s.now
	return s
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

// Cost returns the bcrypt cost used for new password hashes.
func (s *Service) Cost() int { return s.cost }

// Cache exposes the in-memory fallback.
func (s *Service) Cache() *MemoryCache { return s.cache }

// Degraded reports whether the last durable session write failed.
func (s *Service) Degraded() bool { return s.degraded.Load() }

// Create persists a new session for id and returns the raw token. If the
// durable store rejects the write the session is kept in the memory cache
// instead; that is not an error for the caller.
func (s *Service) Create(ctx context.Context, id *Identity) (string, *Session, error) {
	raw, err := GenerateToken()
	if err != nil {
		return "", nil, err
	}
	sess := &Session{
		UserID:             id.UserID,
		Email:              id.Email,
		Name:               id.Name,
		Roles:              append([]Role(nil), id.Roles...),
		ExpiresAt:          s.now().Add(s.ttl),
		MustChangePassword: id.MustChangePassword,
		Variant:            id.Variant,
	}
	rec := &models.Session{TokenHash: HashToken(raw), UserID: id.UserID, ExpiresAt: sess.ExpiresAt}
	if err := s.store.CreateSession(ctx, rec); err != nil {
		s.markDegraded(ctx, err)
		sess.Degraded = true
		s.cache.Put(raw, sess)
		metrics.SessionsCreated.WithLabelValues("memory").Inc()
		return raw, sess.clone(), nil
	}
	s.markRecovered(ctx)
	metrics.SessionsCreated.WithLabelValues("durable").Inc()
	return raw, sess, nil
}

// Resolve turns a raw token into a session. It returns nil when the token is
// unknown, expired, or bound to an inactive user, and also when the store
// cannot answer. stale is true when the client's cookie should be cleared.
func (s *Service) Resolve(ctx context.Context, raw string) (sess *Session, stale bool) {
	if raw == "" {
		return nil, false
	}
	now := s.now()

	if cached, ok := s.cache.Get(raw); ok {
		if !now.Before(cached.ExpiresAt) {
			s.cache.Delete(raw)
			metrics.SessionResolves.WithLabelValues(metrics.ResolveExpired).Inc()
			return nil, true
		}
		return s.refreshCached(ctx, raw, cached)
	}

	hash := HashToken(raw)
	rec, err := s.store.FindSession(ctx, hash)
	if errors.Is(err, ErrNotFound) {
		metrics.SessionResolves.WithLabelValues(metrics.ResolveMiss).Inc()
		return nil, true
	}
	if err != nil {
		s.logger.DebugContext(ctx, "session lookup failed", slog.String("error", err.Error()))
		metrics.SessionResolves.WithLabelValues(metrics.ResolveError).Inc()
		return nil, false
	}
	if !now.Before(rec.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, hash); err != nil {
			s.logger.DebugContext(ctx, "delete expired session", slog.String("error", err.Error()))
		}
		metrics.SessionResolves.WithLabelValues(metrics.ResolveExpired).Inc()
		return nil, true
	}

	user, err := s.store.FindUserByID(ctx, rec.UserID)
	if errors.Is(err, ErrNotFound) || (err == nil && !user.Active) {
		_ = s.store.DeleteSession(ctx, hash)
		metrics.SessionResolves.WithLabelValues(metrics.ResolveInactive).Inc()
		return nil, true
	}
	if err != nil {
		metrics.SessionResolves.WithLabelValues(metrics.ResolveError).Inc()
		return nil, false
	}
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		metrics.SessionResolves.WithLabelValues(metrics.ResolveError).Inc()
		return nil, false
	}

	metrics.SessionResolves.WithLabelValues(metrics.ResolveHit).Inc()
	return &Session{
		UserID:             user.ID,
		Email:              user.Email,
		Name:               user.Name,
		Roles:              roles,
		ExpiresAt:          rec.ExpiresAt,
		MustChangePassword: user.MustChangePassword,
		Variant:            variantFor(user, roles),
	}, false
}

// refreshCached re-reads the user behind a memory session when the store is
// reachable, so deactivation and role changes apply here too. When the store
// is still down the cached view is served as is.
func (s *Service) refreshCached(ctx context.Context, raw string, cached *Session) (*Session, bool) {
	user, err := s.store.FindUserByID(ctx, cached.UserID)
	if errors.Is(err, ErrNotFound) || (err == nil && !user.Active) {
		s.cache.Delete(raw)
		metrics.SessionResolves.WithLabelValues(metrics.ResolveInactive).Inc()
		return nil, true
	}
	if err == nil {
		if roles, rerr := s.store.UserRoles(ctx, user.ID); rerr == nil {
			cached.Email = user.Email
			cached.Name = user.Name
			cached.Roles = roles
			cached.MustChangePassword = user.MustChangePassword
			cached.Variant = variantFor(user, roles)
			s.cache.Put(raw, cached)
		}
	}
	metrics.SessionResolves.WithLabelValues(metrics.ResolveMemory).Inc()
	return cached, false
}

// Destroy removes the session for raw from both stores. Destroying an
// unknown session is not an error.
func (s *Service) Destroy(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	s.cache.Delete(raw)
	if err := s.store.DeleteSession(ctx, HashToken(raw)); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// DestroyUserSessions revokes every session of userID, e.g. after
// deactivation or a password reset.
func (s *Service) DestroyUserSessions(ctx context.Context, userID uint) error {
	s.cache.DeleteUser(userID)
	if err := s.store.DeleteUserSessions(ctx, userID); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// PruneExpired drops expired sessions from the memory cache and the store.
func (s *Service) PruneExpired(ctx context.Context) (int64, error) {
	now := s.now()
	n := int64(s.cache.Sweep(now))
	removed, err := s.store.DeleteExpiredSessions(ctx, now)
	if err != nil {
		return n, errors.Join(ErrStoreUnavailable, err)
	}
	return n + removed, nil
}

func (s *Service) markDegraded(ctx context.Context, err error) {
	if s.degraded.CompareAndSwap(false, true) {
		metrics.SessionStoreDegraded.Set(1)
		s.logger.WarnContext(ctx, "session store unavailable, using in-memory sessions until it recovers",
			slog.String("error", err.Error()))
	}
}

func (s *Service) markRecovered(ctx context.Context) {
	if s.degraded.CompareAndSwap(true, false) {
		metrics.SessionStoreDegraded.Set(0)
		s.logger.InfoContext(ctx, "session store recovered")
	}
}
