package database

import (
	"context"
	"signaler-bot/internal/database/models"
)

// UserMutation changes a record in place. Returning an error aborts the
// update; returning ErrSkipUpdate aborts it without an error.
type UserMutation func(user *models.User) error

// UserRepository is the durable user registry keyed by external ID.
// All returned records are snapshots owned by the caller.
type UserRepository interface {
	// GetUser returns ErrUserNotFound when the sender is unknown.
	GetUser(ctx context.Context, externalID int64) (*models.User, error)
	// GetUserByName returns the oldest record carrying the display name.
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	// CreateUser inserts a fresh Pending record.
	CreateUser(ctx context.Context, externalID int64, displayName string) (*models.User, error)
	// UpdateUser applies mutate as one atomic read-modify-write.
	UpdateUser(ctx context.Context, externalID int64, mutate UserMutation) (*models.User, error)
	// DeleteUser removes the record. Administrative cleanup only.
	DeleteUser(ctx context.Context, externalID int64) error

	ListUsers(ctx context.Context) ([]models.User, error)
	// ListOwners orders by join date, oldest first.
	ListOwners(ctx context.Context) ([]models.User, error)
	ListAllowedUsers(ctx context.Context) ([]models.User, error)
	ListUsersByName(ctx context.Context, name string) ([]models.User, error)
}
