package handlers

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"signaler-bot/internal/locales"
	"signaler-bot/internal/notify"

	"github.com/mymmrac/telego"
)

// HandleCallbackQuery runs an owner notification button as the matching
// command and annotates the notification with the outcome.
func (h *MessageHandler) HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error {
	logPrefix := fmt.Sprintf("[Callback User:%d QueryID:%s]", query.From.ID, query.ID)
	localizer := h.getLocalizer(&query.From)

	action, targetID, ok := notify.ParseCallbackData(query.Data)
	ack := &telego.AnswerCallbackQueryParams{CallbackQueryID: query.ID}
	if !ok {
		ack.Text = locales.GetMessage(localizer, "MsgCallbackNotHandled", nil, nil)
		ack.ShowAlert = true
	}
	// Acknowledge immediately to stop the loading spinner.
	if err := h.bot.AnswerCallbackQuery(ctx, ack); err != nil {
		log.Printf("%s Error answering callback query: %v", logPrefix, err)
	}
	if !ok {
		log.Printf("%s Callback query not handled. Data: %q", logPrefix, query.Data)
		return nil
	}

	req := &Request{
		ChatID:    query.From.ID,
		Sender:    query.From,
		Args:      strconv.FormatInt(targetID, 10),
		Localizer: localizer,
	}
	if msg, isMsg := query.Message.(*telego.Message); isMsg && msg != nil {
		req.ChatID = msg.Chat.ID
		req.Origin = &notify.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.MessageID}
		req.OriginText = msg.Text
	}

	if err := h.dispatch(ctx, action, req); err != nil {
		return err
	}

	if !req.handled || req.Origin == nil || req.Outcome == "" || action == notify.ActionWhois {
		return nil
	}
	text := locales.GetMessage(localizer, "MsgNotifyHandled", map[string]interface{}{
		"Text":   req.OriginText,
		"Owner":  mention(displayName(&query.From), query.From.ID),
		"Result": req.Outcome,
	}, nil)
	if err := h.messenger.EditMessage(ctx, *req.Origin, text); err != nil {
		log.Printf("%s Failed to annotate notification: %v", logPrefix, err)
	}
	return nil
}
