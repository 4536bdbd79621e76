package bootstrap

import (
	"context"
	"testing"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureOwner(t *testing.T) {
	ctx := context.Background()

	t.Run("FreshRegistry", func(t *testing.T) {
		repo := database.NewMemoryUserRepository(nil)
		owner, err := EnsureOwner(ctx, repo, PrimaryOwner{ID: 1, DisplayName: "root"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), owner.ExternalID)

		owners, err := repo.ListOwners(ctx)
		require.NoError(t, err)
		require.Len(t, owners, 1)
		assert.Equal(t, int64(1), owners[0].ExternalID)
		assert.True(t, owners[0].IsAllowed)
	})

	t.Run("ExistingPendingRecordIsPromoted", func(t *testing.T) {
		repo := database.NewMemoryUserRepository(nil)
		_, err := repo.CreateUser(ctx, 1, "root")
		require.NoError(t, err)

		_, err = EnsureOwner(ctx, repo, PrimaryOwner{ID: 1, DisplayName: "owner"})
		require.NoError(t, err)
		u, err := repo.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, access.ClassOwner, access.Classify(*u))
		assert.Equal(t, "root", u.DisplayName, "existing record keeps its name")
	})

	t.Run("MissingConfiguration", func(t *testing.T) {
		repo := database.NewMemoryUserRepository(nil)
		_, err := EnsureOwner(ctx, repo, PrimaryOwner{})
		assert.ErrorIs(t, err, ErrConfigurationMissing)
	})

	t.Run("OwnerAlreadyPresent", func(t *testing.T) {
		repo := database.NewMemoryUserRepository(nil)
		_, err := repo.CreateUser(ctx, 7, "existing")
		require.NoError(t, err)
		_, err = repo.UpdateUser(ctx, 7, func(u *models.User) error {
			access.Promote(u)
			return nil
		})
		require.NoError(t, err)

		owner, err := EnsureOwner(ctx, repo, PrimaryOwner{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), owner.ExternalID)
		_, err = repo.GetUser(ctx, 1)
		assert.ErrorIs(t, err, database.ErrUserNotFound)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		repo := database.NewMemoryUserRepository(nil)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := EnsureOwner(cancelled, repo, PrimaryOwner{ID: 1})
		assert.ErrorIs(t, err, database.ErrStoreUnavailable)
	})
}
