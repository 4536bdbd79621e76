package handlers

import (
	"context"

	"signaler-bot/internal/database/models"
)

// AccessRequestNotifier tells the owners about a new access request.
type AccessRequestNotifier interface {
	NotifyAccessRequest(ctx context.Context, requester models.User) error
}
