package database_test

import (
	"context"
	"testing"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository(t *testing.T) {
	dbtest.RunUserRepositoryTests(t, func(t *testing.T) database.UserRepository {
		return database.NewMemoryUserRepository(nil)
	})
}

func TestEnsureUser(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryUserRepository(nil)

	created, err := database.EnsureUser(ctx, repo, 7, "grace")
	require.NoError(t, err)
	assert.Equal(t, "grace", created.DisplayName)

	again, err := database.EnsureUser(ctx, repo, 7, "grace")
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.Equal(t, created.Version, again.Version, "unchanged name must not write")

	renamed, err := database.EnsureUser(ctx, repo, 7, "grace h")
	require.NoError(t, err)
	assert.Equal(t, created.ID, renamed.ID)
	assert.Equal(t, "grace h", renamed.DisplayName)
}

func TestStoreErrorWrapsSentinel(t *testing.T) {
	err := database.StoreError("get user", context.DeadlineExceeded)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
