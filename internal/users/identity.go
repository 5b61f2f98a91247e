package users

import (
	"strings"
	"time"
)

// Identity maps a provider login onto a canonical paperless user id.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Email       string    `gorm:"column:user_email;size:320"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Identity) TableName() string {
	return "user_identities"
}

// Role grants a named role to a canonical user id.
type Role struct {
	UserID    string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Role      string    `gorm:"column:role;primaryKey;size:32;not null"`
	GrantedAt time.Time `gorm:"column:granted_at;not null"`
}

func (Role) TableName() string {
	return "user_roles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
