package models

import "time"

// Role is a named capability label ("admin", "reviewer", "student", "program-admin").
type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Name        string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description,omitempty"`
}

// UserRole links a user to a role. The composite primary key keeps a
// (user, role) pair unique.
type UserRole struct {
	UserID    uint      `gorm:"primaryKey" json:"user_id"`
	RoleID    uint      `gorm:"primaryKey" json:"role_id"`
	GrantedBy *uint     `json:"granted_by,omitempty"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
	Role      Role      `gorm:"foreignKey:RoleID" json:"role"`
}
