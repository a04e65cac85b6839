package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/settings"
)

func newSettingsService() *settings.Service {
	return settings.NewService(settings.NewInMemRepository())
}

func TestConfigResolverLockedByEnv(t *testing.T) {
	resolver := NewConfigResolver(EnvConfig{
		EnabledSet: true,
		Enabled:    true,
		IssuerURL:  "https://idp.example.com",
		ClientID:   "client-1",
	}, newSettingsService())

	assert.True(t, resolver.IsLocked())

	cfg, err := resolver.GetConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "https://idp.example.com", cfg.IssuerURL)
	assert.Equal(t, "OIDC Provider", cfg.ProviderName)
}

func TestConfigResolverNotLockedWithoutAllThreeVars(t *testing.T) {
	tests := []struct {
		name string
		env  EnvConfig
	}{
		{"no enabled flag", EnvConfig{IssuerURL: "https://idp.example.com", ClientID: "c"}},
		{"no issuer", EnvConfig{EnabledSet: true, Enabled: true, ClientID: "c"}},
		{"no client id", EnvConfig{EnabledSet: true, Enabled: true, IssuerURL: "https://idp.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewConfigResolver(tt.env, newSettingsService())
			assert.False(t, resolver.IsLocked())
		})
	}
}

func TestConfigResolverEnvDisabled(t *testing.T) {
	// Locked with the enabled flag explicitly false: minimal disabled config.
	resolver := NewConfigResolver(EnvConfig{
		EnabledSet: true,
		Enabled:    false,
		IssuerURL:  "https://idp.example.com",
		ClientID:   "client-1",
	}, newSettingsService())

	cfg, err := resolver.GetConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Enabled)
	assert.Empty(t, cfg.IssuerURL)
	assert.Equal(t, "OIDC Provider", cfg.ProviderName)
	assert.False(t, cfg.DisableInternalAuth)
}

func TestConfigResolverFromSettings(t *testing.T) {
	ctx := context.Background()
	settingsService := newSettingsService()
	repo := settingsService.Repo()

	require.NoError(t, repo.Set(ctx, settings.KeyOidcEnabled, "true"))
	require.NoError(t, repo.Set(ctx, settings.KeyOidcIssuerURL, "https://idp.example.com"))
	require.NoError(t, repo.Set(ctx, settings.KeyOidcClientID, "client-1"))
	require.NoError(t, repo.Set(ctx, settings.KeyOidcClientSecret, "hush"))
	require.NoError(t, repo.Set(ctx, settings.KeyOidcProviderName, "Example IdP"))

	resolver := NewConfigResolver(EnvConfig{}, settingsService)
	require.False(t, resolver.IsLocked())

	cfg, err := resolver.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Usable())
	assert.Equal(t, "Example IdP", cfg.ProviderName)
	assert.Equal(t, "hush", cfg.ClientSecret)
}

func TestConfigResolverSettingsAbsentMeansDisabled(t *testing.T) {
	resolver := NewConfigResolver(EnvConfig{}, newSettingsService())

	enabled, err := resolver.IsEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestPublicConfigHidesSecret(t *testing.T) {
	resolver := NewConfigResolver(EnvConfig{
		EnabledSet:   true,
		Enabled:      true,
		IssuerURL:    "https://idp.example.com",
		ClientID:     "client-1",
		ClientSecret: "hush",
	}, newSettingsService())

	public, err := resolver.GetPublicConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, public.Enabled)
	assert.Equal(t, "client-1", public.ClientID)

	admin, err := resolver.GetAdminConfig(context.Background())
	require.NoError(t, err)
	assert.True(t, admin.HasClientSecret)
	assert.True(t, admin.IsLocked)
	assert.Equal(t, "env", admin.Source)
}

func TestPublicConfigEnabledRequiresIssuerAndClient(t *testing.T) {
	ctx := context.Background()
	settingsService := newSettingsService()
	require.NoError(t, settingsService.Repo().Set(ctx, settings.KeyOidcEnabled, "true"))

	resolver := NewConfigResolver(EnvConfig{}, settingsService)

	public, err := resolver.GetPublicConfig(ctx)
	require.NoError(t, err)
	assert.False(t, public.Enabled, "enabled without issuer and client id is unusable")
}

func TestSetSettingsRejectedWhileLocked(t *testing.T) {
	resolver := NewConfigResolver(EnvConfig{
		EnabledSet: true,
		Enabled:    true,
		IssuerURL:  "https://idp.example.com",
		ClientID:   "client-1",
	}, newSettingsService())

	enabled := false
	err := resolver.SetSettings(context.Background(), SettingsUpdate{Enabled: &enabled})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeOidcLocked))
}

func TestSetSettingsPartialUpdate(t *testing.T) {
	ctx := context.Background()
	settingsService := newSettingsService()
	resolver := NewConfigResolver(EnvConfig{}, settingsService)

	enabled := true
	issuer := "https://idp.example.com"
	clientID := "client-1"
	require.NoError(t, resolver.SetSettings(ctx, SettingsUpdate{
		Enabled:   &enabled,
		IssuerURL: &issuer,
		ClientID:  &clientID,
	}))

	cfg, err := resolver.GetConfig(ctx)
	require.NoError(t, err)
	assert.True(t, cfg.Usable())

	// Updating a single field leaves the rest untouched.
	name := "Example IdP"
	require.NoError(t, resolver.SetSettings(ctx, SettingsUpdate{ProviderName: &name}))

	cfg, err = resolver.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Example IdP", cfg.ProviderName)
	assert.Equal(t, "client-1", cfg.ClientID)
}
