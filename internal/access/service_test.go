package access

import (
	"context"
	"testing"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID    = int64(1)
	userID     = int64(2)
	strangerID = int64(3)
)

// setupService seeds one owner and one pending user.
func setupService(t *testing.T) (*Service, *database.MemoryUserRepository) {
	t.Helper()
	ctx := context.Background()
	repo := database.NewMemoryUserRepository(nil)
	_, err := repo.CreateUser(ctx, ownerID, "owner")
	require.NoError(t, err)
	_, err = repo.UpdateUser(ctx, ownerID, func(u *models.User) error {
		Promote(u)
		return nil
	})
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, userID, "user")
	require.NoError(t, err)
	return NewService(repo), repo
}

func assertOwnerImpliesAllowed(t *testing.T, repo database.UserRepository) {
	t.Helper()
	users, err := repo.ListUsers(context.Background())
	require.NoError(t, err)
	for _, u := range users {
		if u.IsOwner {
			assert.True(t, u.IsAllowed, "owner %d must be allowed", u.ExternalID)
		}
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassPending, Classify(models.User{}))
	assert.Equal(t, ClassAwaitingReview, Classify(models.User{HasDemanded: true}))
	assert.Equal(t, ClassApproved, Classify(models.User{IsAllowed: true, HasDemanded: true}))
	assert.Equal(t, ClassOwner, Classify(models.User{IsAllowed: true, IsOwner: true}))
	// Spam state never takes part.
	assert.Equal(t, ClassApproved, Classify(models.User{IsAllowed: true, SpammerLevel: 4}))
}

func TestDemand(t *testing.T) {
	ctx := context.Background()
	s, _ := setupService(t)

	res, u, err := s.Demand(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	assert.Equal(t, ClassAwaitingReview, Classify(*u))

	res, _, err = s.Demand(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyRequested, res)
	assert.Equal(t, KindAlreadyInState, res.Kind())

	res, _, err = s.Demand(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyApproved, res)

	res, _, err = s.Demand(ctx, strangerID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, res)
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	s, repo := setupService(t)

	t.Run("NonOwnerCaller", func(t *testing.T) {
		res, _, err := s.Approve(ctx, userID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultNotPermitted, res)
		assert.Equal(t, KindNotPermitted, res.Kind())
	})

	t.Run("WithoutPriorDemand", func(t *testing.T) {
		res, u, err := s.Approve(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultOK, res)
		assert.Equal(t, ClassApproved, Classify(*u))
	})

	t.Run("AlreadyApproved", func(t *testing.T) {
		before, err := repo.GetUser(ctx, userID)
		require.NoError(t, err)
		res, _, err := s.Approve(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultAlreadyApproved, res)
		after, err := repo.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version, "no second write")
	})

	t.Run("UnknownTarget", func(t *testing.T) {
		res, _, err := s.Approve(ctx, ownerID, 404)
		require.NoError(t, err)
		assert.Equal(t, ResultNotFound, res)
	})
}

func TestDeny(t *testing.T) {
	ctx := context.Background()

	t.Run("ApprovedUserReturnsToPending", func(t *testing.T) {
		s, _ := setupService(t)
		_, _, err := s.Demand(ctx, userID)
		require.NoError(t, err)
		_, _, err = s.Approve(ctx, ownerID, userID)
		require.NoError(t, err)

		res, u, err := s.Deny(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultOK, res)
		assert.False(t, u.IsAllowed)
		assert.False(t, u.HasDemanded)
		assert.Equal(t, ClassPending, Classify(*u))

		// Re-entry after denial is allowed.
		res, _, err = s.Demand(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultOK, res)
	})

	t.Run("PendingRequestIsDismissed", func(t *testing.T) {
		s, repo := setupService(t)
		_, _, err := s.Demand(ctx, userID)
		require.NoError(t, err)

		res, _, err := s.Deny(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultNotApproved, res)
		u, err := repo.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.False(t, u.HasDemanded)
	})

	t.Run("NeverApproved", func(t *testing.T) {
		s, _ := setupService(t)
		res, u, err := s.Deny(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultNotApproved, res)
		assert.False(t, u.HasDemanded)
	})

	t.Run("OwnerIsDemoted", func(t *testing.T) {
		s, repo := setupService(t)
		_, _, err := s.Approve(ctx, ownerID, userID)
		require.NoError(t, err)
		_, _, err = s.SetOwner(ctx, ownerID, userID)
		require.NoError(t, err)

		res, u, err := s.Deny(ctx, ownerID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultOK, res)
		assert.False(t, u.IsOwner)
		assert.False(t, u.IsAllowed)
		assert.False(t, u.HasDemanded)
		assertOwnerImpliesAllowed(t, repo)
	})

	t.Run("LastOwnerIsKept", func(t *testing.T) {
		s, repo := setupService(t)
		res, _, err := s.Deny(ctx, ownerID, ownerID)
		require.NoError(t, err)
		assert.Equal(t, ResultLastOwner, res)
		owners, err := repo.ListOwners(ctx)
		require.NoError(t, err)
		assert.Len(t, owners, 1)
	})

	t.Run("LastOwnerRequestIsDismissed", func(t *testing.T) {
		s, repo := setupService(t)
		_, _, err := s.Demand(ctx, userID)
		require.NoError(t, err)
		_, _, err = s.Approve(ctx, ownerID, userID)
		require.NoError(t, err)
		_, _, err = s.SetOwner(ctx, ownerID, userID)
		require.NoError(t, err)
		_, _, err = s.UnsetOwner(ctx, userID, ownerID)
		require.NoError(t, err)

		res, u, err := s.Deny(ctx, userID, userID)
		require.NoError(t, err)
		assert.Equal(t, ResultLastOwner, res)
		assert.True(t, u.IsOwner)
		assert.False(t, u.HasDemanded)

		stored, err := repo.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.False(t, stored.HasDemanded)
		assert.Equal(t, ClassOwner, Classify(*stored))
	})
}

func TestSetAndUnsetOwner(t *testing.T) {
	ctx := context.Background()
	s, repo := setupService(t)

	res, _, err := s.SetOwner(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotApproved, res, "pending users cannot skip approval")

	_, _, err = s.Approve(ctx, ownerID, userID)
	require.NoError(t, err)
	res, u, err := s.SetOwner(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	assert.Equal(t, ClassOwner, Classify(*u))

	res, _, err = s.SetOwner(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyOwner, res)
	assertOwnerImpliesAllowed(t, repo)

	res, u, err = s.UnsetOwner(ctx, userID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	assert.Equal(t, ClassPending, Classify(*u), "demoted owner must request access again")

	res, _, err = s.UnsetOwner(ctx, userID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotOwner, res)

	res, _, err = s.Approve(ctx, ownerID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotPermitted, res, "a demoted owner lost owner commands")

	res, _, err = s.UnsetOwner(ctx, userID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultLastOwner, res)
	assertOwnerImpliesAllowed(t, repo)
}

func TestRequireOwner(t *testing.T) {
	ctx := context.Background()
	s, _ := setupService(t)

	ok, err := s.RequireOwner(ctx, ownerID, "users")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RequireOwner(ctx, userID, "users")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RequireOwner(ctx, strangerID, "users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequireOwnerStoreFailure(t *testing.T) {
	s, _ := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := s.RequireOwner(ctx, ownerID, "users")
	assert.False(t, ok)
	assert.ErrorIs(t, err, database.ErrStoreUnavailable)
}

func TestDeleteAndWhois(t *testing.T) {
	ctx := context.Background()
	s, _ := setupService(t)

	res, u, err := s.Whois(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)
	assert.Equal(t, "user", u.DisplayName)

	res, err = s.Delete(ctx, ownerID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultOwnerProtected, res)
	assert.Equal(t, KindNotPermitted, res.Kind())

	res, err = s.Delete(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultOK, res)

	res, _, err = s.Whois(ctx, ownerID, userID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, res)

	res, err = s.Delete(ctx, userID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, ResultNotPermitted, res)
}

func TestMainOwnerAndResolveTarget(t *testing.T) {
	ctx := context.Background()
	s, _ := setupService(t)

	main, err := s.MainOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, ownerID, main.ExternalID)

	id, err := s.ResolveTarget(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, userID, id)

	id, err = s.ResolveTarget(ctx, "@user")
	require.NoError(t, err)
	assert.Equal(t, userID, id)

	_, err = s.ResolveTarget(ctx, "ghost")
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	id, err = s.ResolveTarget(ctx, "id: 2")
	require.NoError(t, err)
	assert.Equal(t, userID, id)
}

func TestResolveTargetPrefersNames(t *testing.T) {
	ctx := context.Background()
	s, repo := setupService(t)
	_, err := repo.CreateUser(ctx, 4242, "idris99")
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, 5555, "Ida_2000")
	require.NoError(t, err)
	_, err = repo.CreateUser(ctx, 7, "id 99")
	require.NoError(t, err)

	cases := []struct {
		arg  string
		want int64
	}{
		{"idris99", 4242},
		{"@idris99", 4242},
		{"Ida_2000", 5555},
		{"id 99", 7},
		{"id 4242", 4242},
	}
	for _, c := range cases {
		t.Run(c.arg, func(t *testing.T) {
			id, err := s.ResolveTarget(ctx, c.arg)
			require.NoError(t, err)
			assert.Equal(t, c.want, id)
		})
	}

	_, err = s.ResolveTarget(ctx, "idris")
	assert.ErrorIs(t, err, database.ErrUserNotFound)
}

func TestExtractUserID(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{" id: 42 ", 42, true},
		{"ID 1234567", 1234567, true},
		{"bob42", 0, false},
		{"idris99", 0, false},
		{"Ida_2000", 0, false},
		{"id", 0, false},
		{"@bob", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ExtractUserID(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}
