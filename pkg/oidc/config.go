package oidc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/settings"
)

const defaultProviderName = "OIDC Provider"

// Config is the resolved OIDC configuration, served from either the locked
// environment source or the mutable settings store.
type Config struct {
	Enabled             bool
	ProviderName        string
	IssuerURL           string
	ClientID            string
	ClientSecret        string
	DisableInternalAuth bool
}

// Usable reports whether the flow can actually run: enabled with both
// issuer and client id present.
func (c Config) Usable() bool {
	return c.Enabled && c.IssuerURL != "" && c.ClientID != ""
}

// EnvConfig carries the fixed deployment variables recognized by the
// resolver. Empty fields read as unset; EnabledSet records whether the
// enabled flag was present at all, since its mere presence participates
// in the lock rule.
type EnvConfig struct {
	EnabledSet          bool
	Enabled             bool
	IssuerURL           string
	ClientID            string
	ClientSecret        string
	ProviderName        string
	DisableInternalAuth bool
	AppURL              string
}

// PublicConfig is the non-secret projection for anonymous callers
type PublicConfig struct {
	Enabled             bool   `json:"enabled"`
	ProviderName        string `json:"provider_name"`
	IssuerURL           string `json:"issuer_url,omitempty"`
	ClientID            string `json:"client_id,omitempty"`
	DisableInternalAuth bool   `json:"disable_internal_auth"`
}

// AdminConfig is the admin projection: lock status and whether a secret is
// set, never the secret itself.
type AdminConfig struct {
	Enabled             bool   `json:"enabled"`
	ProviderName        string `json:"provider_name"`
	IssuerURL           string `json:"issuer_url,omitempty"`
	ClientID            string `json:"client_id,omitempty"`
	HasClientSecret     bool   `json:"has_client_secret"`
	DisableInternalAuth bool   `json:"disable_internal_auth"`
	IsLocked            bool   `json:"is_locked"`
	Source              string `json:"source"`
}

// SettingsUpdate carries a partial settings change; nil fields are left
// untouched.
type SettingsUpdate struct {
	Enabled             *bool
	ProviderName        *string
	IssuerURL           *string
	ClientID            *string
	ClientSecret        *string
	DisableInternalAuth *bool
}

// ConfigResolver produces a consistent Config per call. When the fixed
// environment source carries an enabled flag plus issuer and client id,
// the resolver is locked and the settings store is ignored.
type ConfigResolver struct {
	env      EnvConfig
	settings *settings.Service
}

// NewConfigResolver creates a config resolver
func NewConfigResolver(env EnvConfig, settingsService *settings.Service) *ConfigResolver {
	return &ConfigResolver{env: env, settings: settingsService}
}

// IsLocked reports whether the environment source is authoritative.
func (r *ConfigResolver) IsLocked() bool {
	return r.env.EnabledSet && r.env.IssuerURL != "" && r.env.ClientID != ""
}

// AppURL returns the externally visible base URL of the application
func (r *ConfigResolver) AppURL() string {
	if r.env.AppURL != "" {
		return strings.TrimRight(r.env.AppURL, "/")
	}
	return "http://localhost:3000"
}

// GetConfig resolves the current configuration.
func (r *ConfigResolver) GetConfig(ctx context.Context) (Config, error) {
	if r.IsLocked() {
		return r.configFromEnv(), nil
	}
	return r.configFromSettings(ctx)
}

func (r *ConfigResolver) configFromEnv() Config {
	if !r.env.Enabled {
		return Config{ProviderName: defaultProviderName}
	}
	providerName := r.env.ProviderName
	if providerName == "" {
		providerName = defaultProviderName
	}
	return Config{
		Enabled:             true,
		ProviderName:        providerName,
		IssuerURL:           r.env.IssuerURL,
		ClientID:            r.env.ClientID,
		ClientSecret:        r.env.ClientSecret,
		DisableInternalAuth: r.env.DisableInternalAuth,
	}
}

func (r *ConfigResolver) configFromSettings(ctx context.Context) (Config, error) {
	values, err := r.settings.Repo().Get(ctx,
		settings.KeyOidcEnabled,
		settings.KeyOidcProviderName,
		settings.KeyOidcIssuerURL,
		settings.KeyOidcClientID,
		settings.KeyOidcClientSecret,
		settings.KeyOidcDisableInternal,
	)
	if err != nil {
		// The settings store is best-effort here: resolve to disabled
		// rather than failing the caller.
		slog.Warn("Failed to read OIDC settings", "err", err)
		return Config{ProviderName: defaultProviderName}, nil
	}

	enabled := strings.EqualFold(values[settings.KeyOidcEnabled], "true")
	if !enabled {
		return Config{ProviderName: defaultProviderName}, nil
	}

	issuerURL := values[settings.KeyOidcIssuerURL]
	clientID := values[settings.KeyOidcClientID]
	if issuerURL == "" || clientID == "" {
		slog.Warn("OIDC is enabled in settings but missing issuer URL or client ID")
	}

	providerName := values[settings.KeyOidcProviderName]
	if providerName == "" {
		providerName = defaultProviderName
	}

	return Config{
		Enabled:             true,
		ProviderName:        providerName,
		IssuerURL:           issuerURL,
		ClientID:            clientID,
		ClientSecret:        values[settings.KeyOidcClientSecret],
		DisableInternalAuth: strings.EqualFold(values[settings.KeyOidcDisableInternal], "true"),
	}, nil
}

// IsEnabled reports whether the flow is usable end to end.
func (r *ConfigResolver) IsEnabled(ctx context.Context) (bool, error) {
	cfg, err := r.GetConfig(ctx)
	if err != nil {
		return false, err
	}
	return cfg.Usable(), nil
}

// GetPublicConfig returns the anonymous projection.
func (r *ConfigResolver) GetPublicConfig(ctx context.Context) (PublicConfig, error) {
	cfg, err := r.GetConfig(ctx)
	if err != nil {
		return PublicConfig{}, err
	}
	return PublicConfig{
		Enabled:             cfg.Usable(),
		ProviderName:        cfg.ProviderName,
		IssuerURL:           cfg.IssuerURL,
		ClientID:            cfg.ClientID,
		DisableInternalAuth: cfg.DisableInternalAuth,
	}, nil
}

// GetAdminConfig returns the admin projection.
func (r *ConfigResolver) GetAdminConfig(ctx context.Context) (AdminConfig, error) {
	cfg, err := r.GetConfig(ctx)
	if err != nil {
		return AdminConfig{}, err
	}
	locked := r.IsLocked()
	source := "database"
	if locked {
		source = "env"
	}
	return AdminConfig{
		Enabled:             cfg.Enabled,
		ProviderName:        cfg.ProviderName,
		IssuerURL:           cfg.IssuerURL,
		ClientID:            cfg.ClientID,
		HasClientSecret:     cfg.ClientSecret != "",
		DisableInternalAuth: cfg.DisableInternalAuth,
		IsLocked:            locked,
		Source:              source,
	}, nil
}

// SetSettings applies a partial settings change. Fails while the resolver
// is locked by environment variables.
func (r *ConfigResolver) SetSettings(ctx context.Context, update SettingsUpdate) error {
	if r.IsLocked() {
		return apperrors.New(apperrors.ErrCodeOidcLocked,
			"OIDC settings are locked by environment variables. Remove OIDC_ENABLED, OIDC_ISSUER_URL and OIDC_CLIENT_ID to manage from UI.")
	}

	repo := r.settings.Repo()
	set := func(key string, value string) error {
		if err := repo.Set(ctx, key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
		return nil
	}

	if update.Enabled != nil {
		if err := set(settings.KeyOidcEnabled, fmt.Sprintf("%t", *update.Enabled)); err != nil {
			return err
		}
	}
	if update.ProviderName != nil {
		if err := set(settings.KeyOidcProviderName, *update.ProviderName); err != nil {
			return err
		}
	}
	if update.IssuerURL != nil {
		if err := set(settings.KeyOidcIssuerURL, *update.IssuerURL); err != nil {
			return err
		}
	}
	if update.ClientID != nil {
		if err := set(settings.KeyOidcClientID, *update.ClientID); err != nil {
			return err
		}
	}
	if update.ClientSecret != nil {
		if err := set(settings.KeyOidcClientSecret, *update.ClientSecret); err != nil {
			return err
		}
	}
	if update.DisableInternalAuth != nil {
		if err := set(settings.KeyOidcDisableInternal, fmt.Sprintf("%t", *update.DisableInternalAuth)); err != nil {
			return err
		}
	}
	return nil
}
