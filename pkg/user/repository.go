package user

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups when no user matches.
var ErrNotFound = errors.New("user not found")

// ErrDuplicate is returned when a create or update would violate a
// uniqueness constraint (email or oidc subject).
var ErrDuplicate = errors.New("duplicate user")

// CreateParams carries the fields for Repository.Create.
type CreateParams struct {
	Email        string
	Name         string
	PasswordHash string
	OidcSubject  string
	IsAdmin      bool
	Status       Status
}

// Repository persists user records. Implementations must enforce
// uniqueness of email (case-insensitive) and oidc subject, returning
// ErrDuplicate on violation.
type Repository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindBySubject(ctx context.Context, subject string) (*User, error)
	Create(ctx context.Context, params CreateParams) (*User, error)
	Update(ctx context.Context, id string, params UpdateParams) (*User, error)
	Delete(ctx context.Context, id string) error
	CountAdmins(ctx context.Context) (int64, error)

	// InTx runs fn inside a storage transaction. The Repository passed to
	// fn sees uncommitted writes; a non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(Repository) error) error
}
