package db

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ioea/academy/auth"
	"github.com/ioea/academy/internal/config"
	"github.com/ioea/academy/internal/models"
	"gorm.io/gorm"
)

// Migrate runs AutoMigrate for all models.
// Call this at application startup or as part of a migration step.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.UserRole{},
		&models.Session{},
		&models.PasswordResetToken{},
		&models.EmailChangeToken{},
	)
}

var roleDescriptions = map[auth.Role]string{
	auth.RoleAdmin:        "Site manager: users, submissions and reviews",
	auth.RoleProgramAdmin: "Edits the published program",
	auth.RoleReviewer:     "Scores applications of their group",
	auth.RoleStudent:      "Admitted participant",
}

// Seed creates the roles and, when configured, a first admin account.
// Should be called after Migrate. It is safe to run repeatedly.
func Seed(db *gorm.DB, boot config.BootstrapConfig, bcryptCost int) error {
	if err := SeedRoles(db); err != nil {
		return err
	}
	if boot.AdminEmail == "" || boot.AdminPassword == "" {
		return nil
	}
	return SeedAdmin(db, boot, bcryptCost)
}

// SeedRoles inserts the known roles if they are missing.
func SeedRoles(db *gorm.DB) error {
	for _, r := range auth.AllRoles() {
		role := models.Role{Name: string(r), Description: roleDescriptions[r]}
		if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r, err)
		}
	}
	return nil
}

// SeedAdmin creates the bootstrap admin unless a user with that email
// already exists. The account must change its password on first login.
func SeedAdmin(db *gorm.DB, boot config.BootstrapConfig, bcryptCost int) error {
	email := auth.NormalizeEmail(boot.AdminEmail)
	var existing models.User
	err := db.Where("LOWER(email) = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("look up admin: %w", err)
	}
	if err := auth.CheckNewPassword(boot.AdminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD must be %d to %d bytes: %w", auth.MinPasswordLength, auth.MaxPasswordLength, err)
	}
	hash, err := auth.HashPassword(boot.AdminPassword, bcryptCost)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		u := models.User{
			Email:              email,
			Name:               strings.TrimSpace(boot.AdminName),
			PasswordHash:       &hash,
			Active:             true,
			MustChangePassword: true,
		}
		if err := tx.Create(&u).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		var role models.Role
		if err := tx.Where("name = ?", string(auth.RoleAdmin)).First(&role).Error; err != nil {
			return fmt.Errorf("admin role: %w", err)
		}
		return tx.Create(&models.UserRole{UserID: u.ID, RoleID: role.ID, GrantedAt: time.Now()}).Error
	})
}
