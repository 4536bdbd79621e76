package notify

import (
	"context"
	"errors"
	"fmt"
	"log"

	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/locales"
	"signaler-bot/internal/metrics"
)

const (
	kindSpamLockout   = "spam_lockout"
	kindAccessRequest = "access_request"
)

// OwnerNotifier broadcasts workflow events to every owner.
type OwnerNotifier struct {
	repo      database.UserRepository
	messenger Messenger
}

// NewOwnerNotifier creates a notifier reading owners from repo.
func NewOwnerNotifier(repo database.UserRepository, messenger Messenger) *OwnerNotifier {
	return &OwnerNotifier{repo: repo, messenger: messenger}
}

// NotifySpamLockout tells every owner that offender was locked out.
func (n *OwnerNotifier) NotifySpamLockout(ctx context.Context, offender models.User) error {
	return n.broadcast(ctx, kindSpamLockout, "MsgNotifySpamLockout", offender)
}

// NotifyAccessRequest tells every owner that requester demanded access.
func (n *OwnerNotifier) NotifyAccessRequest(ctx context.Context, requester models.User) error {
	return n.broadcast(ctx, kindAccessRequest, "MsgNotifyAccessRequest", requester)
}

// broadcast sends to each owner. A failed send is logged and the broadcast
// goes on; the joined failures are returned.
func (n *OwnerNotifier) broadcast(ctx context.Context, kind, msgID string, subject models.User) error {
	owners, err := n.repo.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("failed to list owners for %s notification: %w", kind, err)
	}

	localizer := locales.NewLocalizer()
	text := locales.GetMessage(localizer, msgID, map[string]interface{}{
		"Name": subject.DisplayName,
		"ID":   subject.ExternalID,
	}, nil)
	actions := []Action{
		{Label: locales.GetMessage(localizer, "BtnApprove", nil, nil), Data: CallbackData(ActionApprove, subject.ExternalID)},
		{Label: locales.GetMessage(localizer, "BtnDeny", nil, nil), Data: CallbackData(ActionDeny, subject.ExternalID)},
		{Label: locales.GetMessage(localizer, "BtnWhois", nil, nil), Data: CallbackData(ActionWhois, subject.ExternalID)},
	}

	var errs []error
	for _, owner := range owners {
		if owner.ExternalID == subject.ExternalID {
			continue
		}
		if _, err := n.messenger.SendMessage(ctx, owner.ExternalID, text, actions...); err != nil {
			log.Printf("[Notify Kind:%s Owner:%d] Failed to notify about user %d: %v", kind, owner.ExternalID, subject.ExternalID, err)
			metrics.OwnerNotifications.WithLabelValues(kind, "failed").Inc()
			errs = append(errs, err)
			continue
		}
		metrics.OwnerNotifications.WithLabelValues(kind, "sent").Inc()
	}
	return errors.Join(errs...)
}
