package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/login"
	"github.com/tendant/simple-notes/pkg/settings"
	"github.com/tendant/simple-notes/pkg/tokengenerator"
	"github.com/tendant/simple-notes/pkg/user"
)

const (
	defaultAccessTokenExpiry  = 15 * time.Minute
	defaultRefreshTokenExpiry = 30 * 24 * time.Hour
)

// TokenPair is the access/refresh credential pair returned by every
// successful authentication path.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Result carries the outcome of login or registration. Tokens is nil when
// the account is pending approval.
type Result struct {
	Tokens  *TokenPair
	User    *user.User
	Message string
}

// Service orchestrates the local password flow and owns token pair minting
// for every authentication path, federated included.
type Service struct {
	users    user.Repository
	refresh  RefreshTokenRepository
	settings *settings.Service
	hasher   login.PasswordHasher
	tokenGen tokengenerator.TokenGenerator

	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// Option configures the auth service
type Option func(*Service)

// WithAccessTokenExpiry overrides the access token lifetime
func WithAccessTokenExpiry(d time.Duration) Option {
	return func(s *Service) { s.accessTokenExpiry = d }
}

// WithRefreshTokenExpiry overrides the refresh token lifetime
func WithRefreshTokenExpiry(d time.Duration) Option {
	return func(s *Service) { s.refreshTokenExpiry = d }
}

// NewService creates a new auth service
func NewService(
	users user.Repository,
	refresh RefreshTokenRepository,
	settingsService *settings.Service,
	hasher login.PasswordHasher,
	tokenGen tokengenerator.TokenGenerator,
	opts ...Option,
) *Service {
	s := &Service{
		users:              users,
		refresh:            refresh,
		settings:           settingsService,
		hasher:             hasher,
		tokenGen:           tokenGen,
		accessTokenExpiry:  defaultAccessTokenExpiry,
		refreshTokenExpiry: defaultRefreshTokenExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRegistrationMode exposes the current registration policy
func (s *Service) GetRegistrationMode(ctx context.Context) (settings.RegistrationMode, error) {
	return s.settings.GetRegistrationMode(ctx)
}

// Register creates a new local account subject to the registration policy.
func (s *Service) Register(ctx context.Context, email, password, name string) (*Result, error) {
	mode, err := s.settings.GetRegistrationMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get registration mode: %w", err)
	}
	if mode == settings.RegistrationDisabled {
		return nil, apperrors.New(apperrors.ErrCodeRegistrationDisabled, "Registration is disabled")
	}

	hashedPassword, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var created *user.User
	err = s.users.InTx(ctx, func(tx user.Repository) error {
		if _, err := tx.FindByEmail(ctx, email); err == nil {
			return apperrors.New(apperrors.ErrCodeAlreadyExists, "User already exists")
		} else if !errors.Is(err, user.ErrNotFound) {
			return fmt.Errorf("failed to check existing user: %w", err)
		}

		created, err = user.CreateProvisioned(ctx, tx, user.CreateParams{
			Email:        email,
			Name:         name,
			PasswordHash: hashedPassword,
		}, mode == settings.RegistrationReview)
		if err != nil {
			if errors.Is(err, user.ErrDuplicate) {
				return apperrors.New(apperrors.ErrCodeAlreadyExists, "User already exists")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("User registered", "user_id", created.ID, "status", created.Status)

	if created.Status != user.StatusActive {
		return &Result{
			User:    created,
			Message: "Registration successful. Your account is pending approval.",
		}, nil
	}

	tokens, err := s.CreateTokenPair(ctx, created.ID, created.Email)
	if err != nil {
		return nil, err
	}
	return &Result{Tokens: tokens, User: created}, nil
}

// Login verifies a password credential and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeInvalidCredentials, "Invalid credentials")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Federated accounts have no password to check against.
	if !u.HasPassword() {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCredentials,
			"This account uses OIDC authentication. Please use the OIDC login option.")
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeInvalidCredentials, "Invalid credentials")
	}

	if u.Status == user.StatusPending {
		return nil, apperrors.New(apperrors.ErrCodePendingApproval,
			"Account pending approval. Please wait for an administrator to approve your account.")
	}

	tokens, err := s.CreateTokenPair(ctx, u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Result{Tokens: tokens, User: u}, nil
}

// CreateTokenPair mints the access/refresh pair. It is the single minting
// path for login, registration and the federated success branches, so
// refresh token bookkeeping is never skipped.
func (s *Service) CreateTokenPair(ctx context.Context, userID, email string) (*TokenPair, error) {
	accessToken, _, err := s.tokenGen.GenerateToken(userID, s.accessTokenExpiry, map[string]interface{}{
		"email": email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := tokengenerator.GenerateRefreshTokenString()
	if err != nil {
		return nil, err
	}

	err = s.refresh.Create(ctx, RefreshToken{
		Token:     refreshToken,
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(s.refreshTokenExpiry),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// RefreshTokens rotates a refresh token: the presented token is deleted and
// a brand-new pair is minted. A token is valid for exactly one use, so a
// replay of an already-rotated token fails.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := s.refresh.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "Invalid refresh token")
		}
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	if stored.ExpiresAt.Before(time.Now().UTC()) {
		// cleanup-on-read
		if err := s.refresh.Delete(ctx, stored.Token); err != nil && !errors.Is(err, ErrTokenNotFound) {
			slog.Error("Failed to delete expired refresh token", "err", err)
		}
		return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "Refresh token has expired")
	}

	u, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			// The owner is gone, the token can never become valid again.
			if derr := s.refresh.Delete(ctx, stored.Token); derr != nil && !errors.Is(derr, ErrTokenNotFound) {
				slog.Error("Failed to delete orphaned refresh token", "err", derr)
			}
			return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "Invalid refresh token")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Pending approval is transient, so the token stays usable once the
	// account is approved.
	if u.Status == user.StatusPending {
		return nil, apperrors.New(apperrors.ErrCodePendingApproval, "Account pending approval")
	}

	// Delete-then-mint: a crash mid-rotation fails closed.
	if err := s.refresh.Delete(ctx, stored.Token); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, apperrors.New(apperrors.ErrCodeTokenInvalid, "Invalid refresh token")
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	return s.CreateTokenPair(ctx, u.ID, u.Email)
}

// Logout revokes every refresh token belonging to the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.refresh.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	slog.Info("User logged out", "user_id", userID)
	return nil
}

// ChangePassword verifies the current password and replaces it with a new one.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperrors.New(apperrors.ErrCodeForbidden, "User not found")
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	if !u.HasPassword() {
		return apperrors.New(apperrors.ErrCodeInvalidInput,
			"Password change is not available for OIDC-authenticated users. Please change your password through your identity provider.")
	}

	ok, err := s.hasher.Verify(currentPassword, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return apperrors.New(apperrors.ErrCodeForbidden, "Current password is incorrect")
	}

	same, err := s.hasher.Verify(newPassword, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("failed to verify password: %w", err)
	}
	if same {
		return apperrors.New(apperrors.ErrCodeInvalidInput,
			"New password must be different from current password")
	}

	hashedPassword, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := s.users.Update(ctx, userID, user.UpdateParams{PasswordHash: &hashedPassword}); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("Password changed", "user_id", userID)
	return nil
}
