package models

import "time"

// User represents an account that owns apps.
type User struct {
	ID           int64     `json:"id"`
	Account      string    `json:"account"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Avatar       *string   `json:"avatar,omitempty"`
	Profile      *string   `json:"profile,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	IsDelete     bool      `json:"-"`
}

// Role constants for user accounts.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleUser, RoleAdmin}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin returns true for administrator accounts.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
