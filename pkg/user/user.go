package user

import (
	"time"
)

// Status is the lifecycle state of a user account.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
)

// User is the identity record shared by password and OIDC authentication.
// PasswordHash is empty for OIDC-only accounts; OidcSubject is empty for
// password-only accounts. Every account has at least one of the two.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	OidcSubject  string
	ProfileImage string
	IsAdmin      bool
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// UpdateParams carries the mutable fields for Repository.Update.
// Nil pointers leave the stored value untouched.
type UpdateParams struct {
	Name         *string
	PasswordHash *string
	OidcSubject  *string
	ProfileImage *string
	Status       *Status
}
