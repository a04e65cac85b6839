package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProvisionedFirstUserIsActiveAdmin(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	// Even with the pending flag set, the bootstrap admin comes up active.
	u, err := CreateProvisioned(ctx, repo, CreateParams{
		Email: "a@x.com",
		Name:  "Alice",
	}, true)
	require.NoError(t, err)

	assert.True(t, u.IsAdmin)
	assert.Equal(t, StatusActive, u.Status)
}

func TestCreateProvisionedSecondUserHonorsPendingFlag(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	_, err := CreateProvisioned(ctx, repo, CreateParams{Email: "a@x.com", Name: "Alice"}, false)
	require.NoError(t, err)

	pending, err := CreateProvisioned(ctx, repo, CreateParams{Email: "b@x.com", Name: "Bob"}, true)
	require.NoError(t, err)
	assert.False(t, pending.IsAdmin)
	assert.Equal(t, StatusPending, pending.Status)

	active, err := CreateProvisioned(ctx, repo, CreateParams{Email: "c@x.com", Name: "Carol"}, false)
	require.NoError(t, err)
	assert.False(t, active.IsAdmin)
	assert.Equal(t, StatusActive, active.Status)
}

func TestCreateProvisionedInsideTransaction(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	var created *User
	err := repo.InTx(ctx, func(tx Repository) error {
		var err error
		created, err = CreateProvisioned(ctx, tx, CreateParams{Email: "a@x.com", Name: "Alice"}, false)
		return err
	})
	require.NoError(t, err)
	assert.True(t, created.IsAdmin)
}

func TestRepositoryUniqueness(t *testing.T) {
	repo := NewInMemRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, CreateParams{Email: "a@x.com", Name: "Alice", OidcSubject: "sub-1", Status: StatusActive})
	require.NoError(t, err)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := repo.Create(ctx, CreateParams{Email: "A@X.COM", Name: "Clone", Status: StatusActive})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("duplicate subject", func(t *testing.T) {
		_, err := repo.Create(ctx, CreateParams{Email: "b@x.com", Name: "Bob", OidcSubject: "sub-1", Status: StatusActive})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("duplicate subject via update", func(t *testing.T) {
		other, err := repo.Create(ctx, CreateParams{Email: "c@x.com", Name: "Carol", Status: StatusActive})
		require.NoError(t, err)

		subject := "sub-1"
		_, err = repo.Update(ctx, other.ID, UpdateParams{OidcSubject: &subject})
		assert.ErrorIs(t, err, ErrDuplicate)
	})
}
