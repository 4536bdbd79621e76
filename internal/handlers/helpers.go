package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/locales"

	"github.com/mymmrac/telego"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// reply localizes msgID for the requester and sends it.
func (h *MessageHandler) reply(ctx context.Context, req *Request, msgID string, data map[string]interface{}, plural *int) {
	h.send(ctx, req, locales.GetMessage(req.Localizer, msgID, data, plural))
}

// send delivers text to the requester and records it as the outcome.
// Delivery failures are logged, not returned.
func (h *MessageHandler) send(ctx context.Context, req *Request, text string) {
	req.Outcome = text
	if _, err := h.messenger.SendMessage(ctx, req.ChatID, text); err != nil {
		log.Printf("Error sending message to chat %d: %v", req.ChatID, err)
	}
}

// fail tells the requester something went wrong and returns err so the update
// loop can report it. Store outages get the retry text.
func (h *MessageHandler) fail(ctx context.Context, req *Request, err error) error {
	log.Printf("Error for user %d in chat %d: %v", req.Sender.ID, req.ChatID, err)
	msgID := "MsgErrorGeneral"
	if errors.Is(err, database.ErrStoreUnavailable) {
		msgID = "MsgErrorRetry"
	}
	h.reply(ctx, req, msgID, nil, nil)
	return err
}

// notifyUser sends a default-language message to a user other than the requester.
func (h *MessageHandler) notifyUser(ctx context.Context, userID int64, msgID string) {
	text := locales.GetMessage(h.getLocalizer(nil), msgID, nil, nil)
	if _, err := h.messenger.SendMessage(ctx, userID, text); err != nil {
		log.Printf("[Notify User:%d] Failed to send %s: %v", userID, msgID, err)
	}
}

// getLocalizer prefers the user's client language over the default.
func (h *MessageHandler) getLocalizer(user *telego.User) *i18n.Localizer {
	if user != nil && user.LanguageCode != "" {
		return locales.NewLocalizer(user.LanguageCode)
	}
	return locales.NewLocalizer()
}

// displayName is the username when set, otherwise the full name.
func displayName(user *telego.User) string {
	if user == nil {
		return ""
	}
	if user.Username != "" {
		return user.Username
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

func mention(name string, id int64) string {
	switch {
	case name == "":
		return fmt.Sprintf("id%d", id)
	case strings.ContainsRune(name, ' '):
		return name
	default:
		return "@" + name
	}
}

func className(localizer *i18n.Localizer, class access.Class) string {
	ids := map[access.Class]string{
		access.ClassPending:        "ClassPending",
		access.ClassAwaitingReview: "ClassAwaitingReview",
		access.ClassApproved:       "ClassApproved",
		access.ClassOwner:          "ClassOwner",
	}
	return locales.GetMessage(localizer, ids[class], nil, nil)
}
