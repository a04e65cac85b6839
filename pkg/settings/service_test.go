package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-notes/pkg/apperrors"
)

func TestRegistrationModeDefaultsToEnabled(t *testing.T) {
	svc := NewService(NewInMemRepository())

	mode, err := svc.GetRegistrationMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RegistrationEnabled, mode)
}

func TestRegistrationModeRoundTrip(t *testing.T) {
	svc := NewService(NewInMemRepository())
	ctx := context.Background()

	for _, mode := range []RegistrationMode{RegistrationDisabled, RegistrationReview, RegistrationEnabled} {
		require.NoError(t, svc.SetRegistrationMode(ctx, mode))

		got, err := svc.GetRegistrationMode(ctx)
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
}

func TestSetRegistrationModeRejectsUnknown(t *testing.T) {
	svc := NewService(NewInMemRepository())

	err := svc.SetRegistrationMode(context.Background(), RegistrationMode("open"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
}

func TestRegistrationModeGarbageValueFallsBack(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, KeyRegistrationMode, "not-a-mode"))

	mode, err := NewService(repo).GetRegistrationMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, RegistrationEnabled, mode)
}

func TestRepositoryGetMultipleKeys(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyOidcEnabled, "true"))
	require.NoError(t, repo.Set(ctx, KeyOidcClientID, "client-1"))

	values, err := repo.Get(ctx, KeyOidcEnabled, KeyOidcClientID, KeyOidcIssuerURL)
	require.NoError(t, err)
	assert.Equal(t, "true", values[KeyOidcEnabled])
	assert.Equal(t, "client-1", values[KeyOidcClientID])

	_, present := values[KeyOidcIssuerURL]
	assert.False(t, present, "unset keys are absent, not empty")
}
