package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of caller roles.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
)

// ParseRole accepts only the known roles, case-insensitively.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleMember:
		return RoleMember, nil
	case RoleManager:
		return RoleManager, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// User is an account. Accounts are deactivated, never deleted.
type User struct {
	ID          string    `db:"id" json:"id" yaml:"id"`
	Email       string    `db:"email" json:"email" yaml:"email"`
	DisplayName string    `db:"display_name" json:"display_name" yaml:"display_name"`
	Role        Role      `db:"role" json:"role" yaml:"role"`
	Active      bool      `db:"active" json:"active" yaml:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at" yaml:"-"`
}

// Name returns the display name or the email when no name is set.
func (u *User) Name() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.Email
}

// UserFilter scopes the account listing.
type UserFilter struct {
	Role   *Role
	Active *bool
	Limit  int
	Offset int
}
