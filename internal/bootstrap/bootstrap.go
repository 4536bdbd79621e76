// Package bootstrap guarantees the registry has an owner before the bot
// starts accepting commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
)

// ErrConfigurationMissing means no owner exists and none is configured.
var ErrConfigurationMissing = errors.New("primary owner is not configured")

// PrimaryOwner is the externally configured owner identity.
type PrimaryOwner struct {
	ID          int64
	DisplayName string
}

// EnsureOwner seeds the primary owner when the registry has none and
// returns the main owner.
func EnsureOwner(ctx context.Context, repo database.UserRepository, primary PrimaryOwner) (*models.User, error) {
	owners, err := repo.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	if len(owners) > 0 {
		main := owners[0]
		log.Printf("Bootstrap: %d owner(s) present, main owner is %d", len(owners), main.ExternalID)
		return &main, nil
	}

	if primary.ID == 0 {
		return nil, ErrConfigurationMissing
	}

	// The configured name only labels a new record; an existing one keeps
	// the name its owner last used.
	name := primary.DisplayName
	_, err = repo.GetUser(ctx, primary.ID)
	switch {
	case err == nil:
		name = ""
	case !errors.Is(err, database.ErrUserNotFound):
		return nil, fmt.Errorf("failed to look up primary owner: %w", err)
	}
	if _, err := database.EnsureUser(ctx, repo, primary.ID, name); err != nil {
		return nil, fmt.Errorf("failed to register primary owner: %w", err)
	}
	owner, err := repo.UpdateUser(ctx, primary.ID, func(u *models.User) error {
		access.Promote(u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to promote primary owner: %w", err)
	}
	log.Printf("Bootstrap: seeded primary owner %d (%s)", owner.ExternalID, owner.DisplayName)
	return owner, nil
}
