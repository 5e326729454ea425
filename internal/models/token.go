package models

import "time"

// Session is a persisted login session. Only the SHA-256 hash of the cookie
// token is stored.
type Session struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

// PasswordResetToken is a single-use, time-boxed password reset link.
type PasswordResetToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
}

// EmailChangeToken confirms ownership of a new email address before it
// replaces the current one.
type EmailChangeToken struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	TokenHash string    `gorm:"uniqueIndex;size:64;not null"`
	UserID    uint      `gorm:"index;not null"`
	NewEmail  string    `gorm:"size:255;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
}

// Usable reports whether the token is unused and not yet expired at now.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// Usable reports whether the token is unused and not yet expired at now.
func (t *EmailChangeToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
