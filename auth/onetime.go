package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ioea/academy/internal/models"
)

// IssueResetToken invalidates the user's outstanding reset links and returns
// a new raw token valid for the reset TTL. Only its hash is stored.
func (s *Service) IssueResetToken(ctx context.Context, userID uint) (string, error) {
	now := s.now()
	if err := s.store.InvalidateResetTokens(ctx, userID, now); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	raw, err := GenerateToken()
	if err != nil {
		return "", err
	}
	rec := &models.PasswordResetToken{
		TokenHash: HashToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.resetTTL),
	}
	if err := s.store.CreateResetToken(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return raw, nil
}

// Recipient is who a one-time link is mailed to.
type Recipient struct {
	UserID uint
	Email  string
	Name   string
}

// IssueResetTokenForEmail issues a reset token for the active account using
// email. It returns ErrNotFound when there is none; callers must not reveal
// that to the visitor.
func (s *Service) IssueResetTokenForEmail(ctx context.Context, email string) (string, *Recipient, error) {
	user, err := s.store.FindUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) || (err == nil && !user.Active) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	raw, err := s.IssueResetToken(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	return raw, &Recipient{UserID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// ValidateResetToken returns the user id bound to raw. Unknown, used and
// expired tokens all yield ErrInvalidToken.
func (s *Service) ValidateResetToken(ctx context.Context, raw string) (uint, error) {
	if raw == "" {
		return 0, ErrInvalidToken
	}
	rec, err := s.store.FindResetToken(ctx, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Usable(s.now()) {
		return 0, ErrInvalidToken
	}
	return rec.UserID, nil
}

// ConsumeResetToken marks raw as used. A token can be consumed once.
func (s *Service) ConsumeResetToken(ctx context.Context, raw string) error {
	err := s.store.MarkResetTokenUsed(ctx, HashToken(raw), s.now())
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResetPassword validates and consumes raw, stores the new password and
// revokes every session of the user.
func (s *Service) ResetPassword(ctx context.Context, raw, password string) (uint, error) {
	if err := CheckNewPassword(password); err != nil {
		return 0, err
	}
	userID, err := s.ValidateResetToken(ctx, raw)
	if err != nil {
		return 0, err
	}
	// Consume before writing so that two concurrent submissions cannot both
	// set a password.
	if err := s.ConsumeResetToken(ctx, raw); err != nil {
		return 0, err
	}
	if err := s.SetPassword(ctx, userID, password); err != nil {
		return 0, err
	}
	if err := s.DestroyUserSessions(ctx, userID); err != nil {
		return userID, err
	}
	return userID, nil
}

// EmailChange is a validated pending email change.
type EmailChange struct {
	UserID   uint
	NewEmail string
}

// IssueEmailChangeToken starts an email change for userID, replacing any
// pending one.
func (s *Service) IssueEmailChangeToken(ctx context.Context, userID uint, newEmail string) (string, error) {
	now := s.now()
	if err := s.store.InvalidateEmailChangeTokens(ctx, userID, now); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	raw, err := GenerateToken()
	if err != nil {
		return "", err
	}
	rec := &models.EmailChangeToken{
		TokenHash: HashToken(raw),
		UserID:    userID,
		NewEmail:  NormalizeEmail(newEmail),
		ExpiresAt: now.Add(s.emailChangeTTL),
	}
	if err := s.store.CreateEmailChangeToken(ctx, rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return raw, nil
}

// ValidateEmailChangeToken returns the pending change bound to raw.
func (s *Service) ValidateEmailChangeToken(ctx context.Context, raw string) (*EmailChange, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	rec, err := s.store.FindEmailChangeToken(ctx, HashToken(raw))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !rec.Usable(s.now()) {
		return nil, ErrInvalidToken
	}
	return &EmailChange{UserID: rec.UserID, NewEmail: rec.NewEmail}, nil
}

// ConfirmEmailChange consumes raw and applies the new address. The token is
// left unused when the address has been taken by another account meanwhile.
func (s *Service) ConfirmEmailChange(ctx context.Context, raw string) (*EmailChange, error) {
	change, err := s.ValidateEmailChangeToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	other, err := s.store.FindUserByEmail(ctx, change.NewEmail)
	if err == nil && other.ID != change.UserID {
		return nil, ErrEmailTaken
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.store.MarkEmailChangeTokenUsed(ctx, HashToken(raw), s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := s.store.SetEmail(ctx, change.UserID, change.NewEmail); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return change, nil
}
