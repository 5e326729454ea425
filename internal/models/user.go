package models

import "time"

// User represents an account on the site (admin, reviewer, student, program admin).
// Deleting a user removes its sessions, roles and tokens in the same transaction.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	// PasswordHash is a bcrypt hash. Nil means the account has no password
	// login (students authenticate by email only).
	PasswordHash *string `gorm:"size:255" json:"-"`
	// LegacyPassword is a plaintext password imported from the pre-roles
	// tables. The first successful login replaces it with PasswordHash.
	LegacyPassword     *string `gorm:"column:legacy_password;size:255" json:"-"`
	Active             bool    `gorm:"not null;default:true" json:"active"`
	MustChangePassword bool    `gorm:"not null;default:false" json:"must_change_password"`

	// Links back to the pre-roles tables (call_reviewers, students).
	LegacyReviewerID    *uint `gorm:"index" json:"legacy_reviewer_id,omitempty"`
	LegacyReviewerGroup *int  `json:"legacy_reviewer_group,omitempty"`
	LegacyStudentID     *uint `gorm:"index" json:"legacy_student_id,omitempty"`

	UserRoles []UserRole `gorm:"foreignKey:UserID" json:"-"`
}

// HasPassword reports whether a password hash is stored.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
