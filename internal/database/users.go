package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"signaler-bot/internal/database/models"
	"time"

	"github.com/google/uuid"
)

// EnsureUser looks up the sender and creates the record on first contact.
// A changed display name is written back.
func EnsureUser(ctx context.Context, repo UserRepository, externalID int64, displayName string) (*models.User, error) {
	user, err := repo.GetUser(ctx, externalID)
	if errors.Is(err, ErrUserNotFound) {
		user, err = repo.CreateUser(ctx, externalID, displayName)
		if errors.Is(err, ErrUserExists) {
			// Lost a creation race against another process.
			user, err = repo.GetUser(ctx, externalID)
		} else if err == nil {
			log.Printf("[Registry User:%d] Registered new user %q", externalID, displayName)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user %d: %w", externalID, err)
	}

	if displayName != "" && user.DisplayName != displayName {
		user, err = repo.UpdateUser(ctx, externalID, func(u *models.User) error {
			u.DisplayName = displayName
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to rename user %d: %w", externalID, err)
		}
	}
	return user, nil
}

// NewUser builds a fresh Pending record with a new surrogate key.
func NewUser(externalID int64, displayName string, now time.Time) models.User {
	return models.User{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		DisplayName: displayName,
		JoinDate:    now.UTC(),
	}
}
