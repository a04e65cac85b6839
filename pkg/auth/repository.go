package auth

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound is returned when a refresh token is not in the store.
var ErrTokenNotFound = errors.New("refresh token not found")

// RefreshToken is a stored long-lived credential. The token string itself is
// the lookup key; it never goes inside a JWT.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshTokenRepository persists refresh tokens
type RefreshTokenRepository interface {
	Create(ctx context.Context, token RefreshToken) error
	FindByToken(ctx context.Context, token string) (*RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
}
