package settings

import (
	"context"
	"fmt"

	"github.com/tendant/simple-notes/pkg/apperrors"
)

// Setting keys stored in the settings table.
const (
	KeyRegistrationMode    = "registration_mode"
	KeyOidcEnabled         = "oidc_enabled"
	KeyOidcProviderName    = "oidc_provider_name"
	KeyOidcIssuerURL       = "oidc_issuer_url"
	KeyOidcClientID        = "oidc_client_id"
	KeyOidcClientSecret    = "oidc_client_secret"
	KeyOidcDisableInternal = "oidc_disable_internal_auth"
)

// RegistrationMode controls how self-service signup behaves.
type RegistrationMode string

const (
	// RegistrationDisabled rejects new signups outright.
	RegistrationDisabled RegistrationMode = "disabled"
	// RegistrationEnabled activates new accounts immediately.
	RegistrationEnabled RegistrationMode = "enabled"
	// RegistrationReview creates new accounts in pending status until an
	// admin approves them.
	RegistrationReview RegistrationMode = "review"
)

// Valid reports whether m is one of the three recognized modes.
func (m RegistrationMode) Valid() bool {
	switch m {
	case RegistrationDisabled, RegistrationEnabled, RegistrationReview:
		return true
	}
	return false
}

// Service reads and writes application settings
type Service struct {
	repo Repository
}

// NewService creates a new settings service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Repo exposes the underlying repository.
func (s *Service) Repo() Repository {
	return s.repo
}

// GetRegistrationMode returns the stored registration mode. An unset or
// unrecognized value falls back to enabled.
func (s *Service) GetRegistrationMode(ctx context.Context) (RegistrationMode, error) {
	values, err := s.repo.Get(ctx, KeyRegistrationMode)
	if err != nil {
		return "", fmt.Errorf("failed to get registration mode: %w", err)
	}
	mode := RegistrationMode(values[KeyRegistrationMode])
	if !mode.Valid() {
		return RegistrationEnabled, nil
	}
	return mode, nil
}

// SetRegistrationMode stores the registration mode after validating it
func (s *Service) SetRegistrationMode(ctx context.Context, mode RegistrationMode) error {
	if !mode.Valid() {
		return apperrors.Newf(apperrors.ErrCodeInvalidInput, "invalid registration mode: %s", mode)
	}
	if err := s.repo.Set(ctx, KeyRegistrationMode, string(mode)); err != nil {
		return fmt.Errorf("failed to set registration mode: %w", err)
	}
	return nil
}
