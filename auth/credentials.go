package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ioea/academy/internal/models"
)

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks an email and password against the stored bcrypt
// hash. Every rejection returns ErrInvalidCredentials; only a store failure
// returns something else (wrapping ErrStoreUnavailable).
func (s *Service) ValidateCredentials(ctx context.Context, email, password string) (*Identity, error) {
	user, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		VerifyPassword(string(dummyHash), password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch {
	case user.HasPassword():
		if !VerifyPassword(*user.PasswordHash, password) || !user.Active {
			return nil, ErrInvalidCredentials
		}
		if needsRehash(*user.PasswordHash, s.cost) {
			s.upgradeHash(ctx, user.ID, password)
		}
	case user.LegacyPassword != nil:
		if err := s.migrateLegacyPassword(ctx, user, password); err != nil {
			return nil, err
		}
	default:
		VerifyPassword(string(dummyHash), password)
		return nil, ErrInvalidCredentials
	}

	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return identityFor(user, roles), nil
}

// ValidateEmailOnly authenticates an active user by email alone, provided the
// user holds role. It serves the student portal, whose accounts have no
// password.
func (s *Service) ValidateEmailOnly(ctx context.Context, email string, role Role) (*Identity, error) {
	user, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	for _, r := range roles {
		if r == role {
			return identityFor(user, roles), nil
		}
	}
	return nil, ErrInvalidCredentials
}

// upgradeHash re-hashes a verified password at the current cost. Failure
// only costs the upgrade.
func (s *Service) upgradeHash(ctx context.Context, userID uint, password string) {
	hash, err := HashPassword(password, s.cost)
	if err == nil {
		err = s.store.UpgradePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "rehash password", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
	}
}

// migrateLegacyPassword is the one-time step for accounts imported with a
// plaintext password: a matching login stores a bcrypt hash and clears the
// plaintext, after which only the hash path applies.
func (s *Service) migrateLegacyPassword(ctx context.Context, user *models.User, password string) error {
	legacy := *user.LegacyPassword
	match := legacy != "" && subtle.ConstantTimeCompare([]byte(legacy), []byte(password)) == 1
	// Keep the timing of a bcrypt check.
	VerifyPassword(string(dummyHash), password)
	if !match || !user.Active {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	if err := s.store.UpgradePasswordHash(ctx, user.ID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	user.PasswordHash, user.LegacyPassword = &hash, nil
	s.logger.InfoContext(ctx, "legacy password migrated", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

// IdentityForUser loads a user and roles for flows that bind a session
// without a password check (admin "log in as").
func (s *Service) IdentityForUser(ctx context.Context, userID uint) (*Identity, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return identityFor(user, roles), nil
}

// CheckPassword verifies the current password of a signed-in user.
func (s *Service) CheckPassword(ctx context.Context, userID uint, password string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !user.HasPassword() || !VerifyPassword(*user.PasswordHash, password) {
		return ErrInvalidCredentials
	}
	return nil
}

// SetPassword hashes and stores a new password and clears the
// must-change-password flag.
func (s *Service) SetPassword(ctx context.Context, userID uint, password string) error {
	if err := CheckNewPassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
