package auth

import (
	"context"
	"time"

	"github.com/ioea/academy/internal/models"
)

// Store is the durable collaborator behind the session service: users, their
// roles, sessions and one-time tokens. Lookups return ErrNotFound when no row
// matches; any other error means the store could not answer.
type Store interface {
	FindUserByID(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UserRoles(ctx context.Context, userID uint) ([]Role, error)
	// SetPasswordHash stores a password the user chose: it clears the
	// must-change-password flag and any legacy plaintext.
	SetPasswordHash(ctx context.Context, userID uint, hash string) error
	// UpgradePasswordHash replaces the stored credential with hash and clears
	// the legacy plaintext, leaving the must-change-password flag alone.
	UpgradePasswordHash(ctx context.Context, userID uint, hash string) error
	SetEmail(ctx context.Context, userID uint, email string) error

	CreateSession(ctx context.Context, s *models.Session) error
	FindSession(ctx context.Context, tokenHash string) (*models.Session, error)
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID uint) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	CreateResetToken(ctx context.Context, t *models.PasswordResetToken) error
	FindResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	// InvalidateResetTokens marks every unused token of userID as used at now.
	InvalidateResetTokens(ctx context.Context, userID uint, now time.Time) error
	// MarkResetTokenUsed sets used_at only if it is still null; it returns
	// ErrNotFound when no unused token matched.
	MarkResetTokenUsed(ctx context.Context, tokenHash string, now time.Time) error

	CreateEmailChangeToken(ctx context.Context, t *models.EmailChangeToken) error
	FindEmailChangeToken(ctx context.Context, tokenHash string) (*models.EmailChangeToken, error)
	InvalidateEmailChangeTokens(ctx context.Context, userID uint, now time.Time) error
	MarkEmailChangeTokenUsed(ctx context.Context, tokenHash string, now time.Time) error
}
