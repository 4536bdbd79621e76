package database

import (
	"context"
	"errors"
	"signaler-bot/internal/database/models"
	"sort"
	"sync"
	"time"
)

// MemoryUserRepository keeps the registry in process memory.
// It backs the "memory" storage driver and the engine tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]*models.User
	now   func() time.Time
}

// NewMemoryUserRepository creates an empty registry. A nil clock means time.Now.
func NewMemoryUserRepository(now func() time.Time) *MemoryUserRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryUserRepository{
		users: make(map[int64]*models.User),
		now:   now,
	}
}

// GetUser returns a snapshot of the record for externalID.
func (r *MemoryUserRepository) GetUser(ctx context.Context, externalID int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, StoreError("get user", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[externalID]
	if !ok {
		return nil, ErrUserNotFound
	}
	snapshot := u.Clone()
	return &snapshot, nil
}

// GetUserByName returns the oldest record with the given display name.
func (r *MemoryUserRepository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	users, err := r.ListUsersByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return &users[0], nil
}

// CreateUser inserts a fresh record or fails with ErrUserExists.
func (r *MemoryUserRepository) CreateUser(ctx context.Context, externalID int64, displayName string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, StoreError("create user", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[externalID]; ok {
		return nil, ErrUserExists
	}
	u := NewUser(externalID, displayName, r.now())
	r.users[externalID] = &u
	snapshot := u.Clone()
	return &snapshot, nil
}

// UpdateUser runs mutate on a copy and commits it only if mutate succeeds.
func (r *MemoryUserRepository) UpdateUser(ctx context.Context, externalID int64, mutate UserMutation) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, StoreError("update user", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.users[externalID]
	if !ok {
		return nil, ErrUserNotFound
	}
	next := current.Clone()
	if err := mutate(&next); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			snapshot := current.Clone()
			return &snapshot, nil
		}
		return nil, err
	}
	// Identity fields are not mutable.
	next.ID = current.ID
	next.ExternalID = current.ExternalID
	next.JoinDate = current.JoinDate
	next.Version = current.Version + 1
	r.users[externalID] = &next
	snapshot := next.Clone()
	return &snapshot, nil
}

// DeleteUser removes the record for externalID.
func (r *MemoryUserRepository) DeleteUser(ctx context.Context, externalID int64) error {
	if err := ctx.Err(); err != nil {
		return StoreError("delete user", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[externalID]; !ok {
		return ErrUserNotFound
	}
	delete(r.users, externalID)
	return nil
}

func (r *MemoryUserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, func(models.User) bool { return true })
}

func (r *MemoryUserRepository) ListOwners(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, func(u models.User) bool { return u.IsOwner })
}

func (r *MemoryUserRepository) ListAllowedUsers(ctx context.Context) ([]models.User, error) {
	return r.list(ctx, func(u models.User) bool { return u.IsAllowed })
}

func (r *MemoryUserRepository) ListUsersByName(ctx context.Context, name string) ([]models.User, error) {
	return r.list(ctx, func(u models.User) bool { return u.DisplayName == name })
}

// list returns matching snapshots ordered by join date, then external ID.
func (r *MemoryUserRepository) list(ctx context.Context, keep func(models.User) bool) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, StoreError("list users", err)
	}
	r.mu.RLock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		if keep(*u) {
			out = append(out, u.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinDate.Equal(out[j].JoinDate) {
			return out[i].JoinDate.Before(out[j].JoinDate)
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	return out, nil
}

var _ UserRepository = (*MemoryUserRepository)(nil)
