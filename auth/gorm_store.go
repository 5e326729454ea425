package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ioea/academy/internal/models"
	"gorm.io/gorm"
)

// GormStore implements Store on the relational schema in internal/models.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore creates a GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.DB.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&u).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *GormStore) UserRoles(ctx context.Context, userID uint) ([]Role, error) {
	var names []string
	err := s.DB.WithContext(ctx).
		Model(&models.Role{}).
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return ParseRoles(names), nil
}

func (s *GormStore) SetPasswordHash(ctx context.Context, userID uint, hash string) error {
	return s.updateUser(ctx, userID, map[string]any{
		"password_hash":        hash,
		"legacy_password":      nil,
		"must_change_password": false,
	})
}

func (s *GormStore) UpgradePasswordHash(ctx context.Context, userID uint, hash string) error {
	return s.updateUser(ctx, userID, map[string]any{"password_hash": hash, "legacy_password": nil})
}

func (s *GormStore) updateUser(ctx context.Context, userID uint, fields map[string]any) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetEmail(ctx context.Context, userID uint, email string) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("email", email)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateSession(ctx context.Context, sess *models.Session) error {
	return s.DB.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) FindSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var sess models.Session
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&sess).Error; err != nil {
		return nil, notFound(err)
	}
	return &sess, nil
}

func (s *GormStore) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.Session{}).Error
}

func (s *GormStore) DeleteUserSessions(ctx context.Context, userID uint) error {
	return s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{}).Error
}

func (s *GormStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) CreateResetToken(ctx context.Context, t *models.PasswordResetToken) error {
	return s.DB.WithContext(ctx).Create(t).Error
}

func (s *GormStore) FindResetToken(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	var t models.PasswordResetToken
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *GormStore) InvalidateResetTokens(ctx context.Context, userID uint, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Update("used_at", now).Error
}

func (s *GormStore) MarkResetTokenUsed(ctx context.Context, tokenHash string, now time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.PasswordResetToken{}).
		Where("token_hash = ? AND used_at IS NULL", tokenHash).
		Update("used_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateEmailChangeToken(ctx context.Context, t *models.EmailChangeToken) error {
	return s.DB.WithContext(ctx).Create(t).Error
}

func (s *GormStore) FindEmailChangeToken(ctx context.Context, tokenHash string) (*models.EmailChangeToken, error) {
	var t models.EmailChangeToken
	if err := s.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (s *GormStore) InvalidateEmailChangeTokens(ctx context.Context, userID uint, now time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.EmailChangeToken{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Update("used_at", now).Error
}

func (s *GormStore) MarkEmailChangeTokenUsed(ctx context.Context, tokenHash string, now time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.EmailChangeToken{}).
		Where("token_hash = ? AND used_at IS NULL", tokenHash).
		Update("used_at", now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
