package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-notes/pkg/apperrors"
	"github.com/tendant/simple-notes/pkg/login"
	"github.com/tendant/simple-notes/pkg/settings"
	"github.com/tendant/simple-notes/pkg/tokengenerator"
	"github.com/tendant/simple-notes/pkg/user"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *user.InMemRepository, *settings.Service, *InMemRefreshTokenRepository) {
	t.Helper()
	users := user.NewInMemRepository()
	refresh := NewInMemRefreshTokenRepository()
	settingsService := settings.NewService(settings.NewInMemRepository())
	tokenGen := tokengenerator.NewJwtTokenGenerator("test-secret", "simple-notes", "simple-notes")
	svc := NewService(users, refresh, settingsService, login.NewBcryptHasher(), tokenGen, opts...)
	return svc, users, settingsService, refresh
}

func TestRegisterFirstUserBecomesAdmin(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	require.NotNil(t, result.Tokens)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.True(t, result.User.IsAdmin)
	assert.Equal(t, user.StatusActive, result.User.Status)
}

func TestRegisterFirstUserBypassesReviewMode(t *testing.T) {
	svc, _, settingsService, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, settingsService.SetRegistrationMode(ctx, settings.RegistrationReview))

	result, err := svc.Register(ctx, "admin@x.com", "longenough1", "Admin")
	require.NoError(t, err)

	assert.True(t, result.User.IsAdmin)
	assert.Equal(t, user.StatusActive, result.User.Status)
	assert.NotNil(t, result.Tokens, "first admin must receive tokens even under review mode")
}

func TestRegisterReviewModeCreatesPendingUser(t *testing.T) {
	svc, _, settingsService, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "admin@x.com", "longenough1", "Admin")
	require.NoError(t, err)

	require.NoError(t, settingsService.SetRegistrationMode(ctx, settings.RegistrationReview))

	result, err := svc.Register(ctx, "b@x.com", "longenough1", "Bob")
	require.NoError(t, err)

	assert.Nil(t, result.Tokens, "pending users must not receive tokens")
	assert.Equal(t, user.StatusPending, result.User.Status)
	assert.False(t, result.User.IsAdmin)
	assert.NotEmpty(t, result.Message)

	// Login for the pending user fails with a pending-approval error,
	// not invalid credentials.
	_, err = svc.Login(ctx, "b@x.com", "longenough1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePendingApproval))
}

func TestRegisterDisabledMode(t *testing.T) {
	svc, _, settingsService, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, settingsService.SetRegistrationMode(ctx, settings.RegistrationDisabled))

	_, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRegistrationDisabled))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "A@X.com", "longenough1", "Alice Again")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))
}

func TestLoginSuccess(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "a@x.com", "longenough1")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, result.User.ID)
	assert.NotEmpty(t, result.Tokens.AccessToken)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@x.com", "wrong-password")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@x.com", "longenough1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestLoginOidcOnlyAccount(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := users.Create(ctx, user.CreateParams{
		Email:       "sso@x.com",
		Name:        "SSO User",
		OidcSubject: "subject-1",
		Status:      user.StatusActive,
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "sso@x.com", "anything-at-all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OIDC", "OIDC-only accounts must get an explicit message")
}

func TestRefreshTokenRotation(t *testing.T) {
	svc, _, _, refresh := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)
	oldToken := result.Tokens.RefreshToken

	rotated, err := svc.RefreshTokens(ctx, oldToken)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, rotated.RefreshToken)

	// Replay of the rotated token fails: it was deleted.
	_, err = svc.RefreshTokens(ctx, oldToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid))

	// The new token works exactly once more.
	_, err = svc.RefreshTokens(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 2, refresh.Count())
}

func TestRefreshTokenExpiredIsDeleted(t *testing.T) {
	svc, _, _, refresh := newTestService(t, WithRefreshTokenExpiry(-time.Minute))
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	_, err = svc.RefreshTokens(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid))
	assert.Equal(t, 0, refresh.Count(), "expired token is cleaned up on read")
}

func TestRefreshTokenDeletedUserIsCleanedUp(t *testing.T) {
	svc, users, _, refresh := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, result.User.ID))

	_, err = svc.RefreshTokens(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeTokenInvalid))
	assert.Equal(t, 0, refresh.Count(), "orphaned token is cleaned up on read")
}

func TestRefreshTokenPendingUserKeepsToken(t *testing.T) {
	svc, users, _, refresh := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	// Demote the user to pending after tokens were issued.
	pending := user.StatusPending
	_, err = users.Update(ctx, result.User.ID, user.UpdateParams{Status: &pending})
	require.NoError(t, err)

	_, err = svc.RefreshTokens(ctx, result.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePendingApproval))
	assert.Equal(t, 1, refresh.Count(), "pending approval must not delete the token")

	// Once approved, the same token becomes usable again.
	active := user.StatusActive
	_, err = users.Update(ctx, result.User.ID, user.UpdateParams{Status: &active})
	require.NoError(t, err)

	_, err = svc.RefreshTokens(ctx, result.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesAllTokens(t *testing.T) {
	svc, _, _, refresh := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@x.com", "longenough1")
	require.NoError(t, err)
	require.Equal(t, 2, refresh.Count())

	require.NoError(t, svc.Logout(ctx, result.User.ID))
	assert.Equal(t, 0, refresh.Count())
}

func TestChangePassword(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Register(ctx, "a@x.com", "longenough1", "Alice")
	require.NoError(t, err)
	userID := result.User.ID

	t.Run("wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, userID, "wrong", "anotherlongpwd1")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
	})

	t.Run("same password rejected", func(t *testing.T) {
		err := svc.ChangePassword(ctx, userID, "longenough1", "longenough1")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("success", func(t *testing.T) {
		err := svc.ChangePassword(ctx, userID, "longenough1", "anotherlongpwd1")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "a@x.com", "anotherlongpwd1")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "a@x.com", "longenough1")
		require.Error(t, err)
	})
}

func TestChangePasswordOidcOnlyAccount(t *testing.T) {
	svc, users, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := users.Create(ctx, user.CreateParams{
		Email:       "sso@x.com",
		Name:        "SSO User",
		OidcSubject: "subject-1",
		Status:      user.StatusActive,
	})
	require.NoError(t, err)

	err = svc.ChangePassword(ctx, created.ID, "anything", "newlongpassword1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity provider")
}
