// Package dbtest holds the behavioral checks every UserRepository must pass.
package dbtest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunUserRepositoryTests exercises repo constructors against the registry contract.
func RunUserRepositoryTests(t *testing.T, newRepo func(t *testing.T) database.UserRepository) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetUser(ctx, 1)
		assert.ErrorIs(t, err, database.ErrUserNotFound)
		_, err = repo.GetUserByName(ctx, "nobody")
		assert.ErrorIs(t, err, database.ErrUserNotFound)
	})

	t.Run("CreateFreshRecord", func(t *testing.T) {
		repo := newRepo(t)
		u, err := repo.CreateUser(ctx, 100, "alice")
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, int64(100), u.ExternalID)
		assert.Equal(t, "alice", u.DisplayName)
		assert.False(t, u.IsOwner)
		assert.False(t, u.IsAllowed)
		assert.False(t, u.HasDemanded)
		assert.Nil(t, u.LastCommandAt)
		assert.Zero(t, u.SpammerLevel)
		assert.False(t, u.JoinDate.IsZero())

		_, err = repo.CreateUser(ctx, 100, "alice again")
		assert.ErrorIs(t, err, database.ErrUserExists)
	})

	t.Run("UpdateCommitsAsUnit", func(t *testing.T) {
		repo := newRepo(t)
		created, err := repo.CreateUser(ctx, 200, "bob")
		require.NoError(t, err)

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		updated, err := repo.UpdateUser(ctx, 200, func(u *models.User) error {
			u.IsAllowed = true
			u.SpammerLevel = 2
			u.LastCommandAt = &at
			u.ExternalID = 999 // identity is not writable
			return nil
		})
		require.NoError(t, err)
		assert.True(t, updated.IsAllowed)
		assert.Equal(t, 2, updated.SpammerLevel)
		assert.Equal(t, int64(200), updated.ExternalID)
		assert.Equal(t, created.ID, updated.ID)
		assert.Greater(t, updated.Version, created.Version)

		got, err := repo.GetUser(ctx, 200)
		require.NoError(t, err)
		require.NotNil(t, got.LastCommandAt)
		assert.WithinDuration(t, at, *got.LastCommandAt, time.Millisecond)
		assert.Equal(t, 2, got.SpammerLevel)
	})

	t.Run("UpdateAbortLeavesRecord", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateUser(ctx, 300, "carol")
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = repo.UpdateUser(ctx, 300, func(u *models.User) error {
			u.IsAllowed = true
			return boom
		})
		assert.ErrorIs(t, err, boom)

		skipped, err := repo.UpdateUser(ctx, 300, func(u *models.User) error {
			u.IsOwner = true
			return database.ErrSkipUpdate
		})
		require.NoError(t, err)
		assert.False(t, skipped.IsOwner)

		got, err := repo.GetUser(ctx, 300)
		require.NoError(t, err)
		assert.False(t, got.IsAllowed)
		assert.False(t, got.IsOwner)

		_, err = repo.UpdateUser(ctx, 301, func(u *models.User) error { return nil })
		assert.ErrorIs(t, err, database.ErrUserNotFound)
	})

	t.Run("Lists", func(t *testing.T) {
		repo := newRepo(t)
		for _, id := range []int64{10, 11, 12, 13} {
			_, err := repo.CreateUser(ctx, id, "user")
			require.NoError(t, err)
		}
		_, err := repo.UpdateUser(ctx, 11, func(u *models.User) error {
			u.IsOwner, u.IsAllowed = true, true
			return nil
		})
		require.NoError(t, err)
		_, err = repo.UpdateUser(ctx, 13, func(u *models.User) error {
			u.IsOwner, u.IsAllowed = true, true
			return nil
		})
		require.NoError(t, err)
		_, err = repo.UpdateUser(ctx, 12, func(u *models.User) error {
			u.IsAllowed = true
			u.DisplayName = "dave"
			return nil
		})
		require.NoError(t, err)

		all, err := repo.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 4)

		owners, err := repo.ListOwners(ctx)
		require.NoError(t, err)
		require.Len(t, owners, 2)
		assert.Equal(t, int64(11), owners[0].ExternalID)
		assert.Equal(t, int64(13), owners[1].ExternalID)

		allowed, err := repo.ListAllowedUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, allowed, 3)

		named, err := repo.ListUsersByName(ctx, "user")
		require.NoError(t, err)
		assert.Len(t, named, 3)

		dave, err := repo.GetUserByName(ctx, "dave")
		require.NoError(t, err)
		assert.Equal(t, int64(12), dave.ExternalID)

		first, err := repo.GetUserByName(ctx, "user")
		require.NoError(t, err)
		assert.Equal(t, int64(10), first.ExternalID)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateUser(ctx, 400, "erin")
		require.NoError(t, err)
		require.NoError(t, repo.DeleteUser(ctx, 400))
		_, err = repo.GetUser(ctx, 400)
		assert.ErrorIs(t, err, database.ErrUserNotFound)
		assert.ErrorIs(t, repo.DeleteUser(ctx, 400), database.ErrUserNotFound)
	})

	t.Run("ConcurrentUpdatesSerialize", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.CreateUser(ctx, 500, "frank")
		require.NoError(t, err)

		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.UpdateUser(ctx, 500, func(u *models.User) error {
					u.SpammerLevel++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetUser(ctx, 500)
		require.NoError(t, err)
		assert.Equal(t, writers, got.SpammerLevel)
	})
}
