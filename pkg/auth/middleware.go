package auth

import (
	"context"
	"errors"

	"github.com/go-chi/jwtauth/v5"
)

// NewJWTAuth builds the verifier used by the protected route groups. The
// secret must match the token generator's signing secret.
func NewJWTAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// AuthenticatedUser is the identity extracted from a verified access token.
type AuthenticatedUser struct {
	UserID string
	Email  string
}

// UserFromContext extracts the authenticated user from a request context
// populated by jwtauth.Verifier.
func UserFromContext(ctx context.Context) (*AuthenticatedUser, error) {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, errors.New("missing sub claim")
	}
	email, _ := claims["email"].(string)

	return &AuthenticatedUser{UserID: sub, Email: email}, nil
}
