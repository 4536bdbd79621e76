// Package notify sends chat messages and broadcasts owner notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"signaler-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"
)

// Action is an inline button attached to a message.
type Action struct {
	Label string
	Data  string
}

// MessageRef points at a sent message so it can be edited later.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, targetID int64, text string, actions ...Action) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string, actions ...Action) error
}

// TelegoMessenger implements Messenger over the Telegram Bot API with a
// global outbound rate limit.
type TelegoMessenger struct {
	bot     telegoapi.BotAPI
	limiter ratelimit.Limiter
	wait    func(ctx context.Context, d time.Duration) error
}

// NewTelegoMessenger creates a messenger sending at most perSecond messages
// per second. A non-positive rate disables throttling.
func NewTelegoMessenger(bot telegoapi.BotAPI, perSecond int) *TelegoMessenger {
	limiter := ratelimit.NewUnlimited()
	if perSecond > 0 {
		limiter = ratelimit.New(perSecond)
	}
	return &TelegoMessenger{bot: bot, limiter: limiter, wait: sleepCtx}
}

// SendMessage sends text to targetID with actions laid out in one row.
func (m *TelegoMessenger) SendMessage(ctx context.Context, targetID int64, text string, actions ...Action) (MessageRef, error) {
	m.limiter.Take()
	params := tu.Message(tu.ID(targetID), text)
	if kb := keyboard(actions); kb != nil {
		params = params.WithReplyMarkup(kb)
	}
	var sent *telego.Message
	err := m.withRetry(ctx, fmt.Sprintf("[Send Chat:%d]", targetID), func() error {
		var sendErr error
		sent, sendErr = m.bot.SendMessage(ctx, params)
		return sendErr
	})
	if err != nil {
		return MessageRef{}, fmt.Errorf("failed to send message to %d: %w", targetID, err)
	}
	ref := MessageRef{ChatID: targetID}
	if sent != nil {
		ref.MessageID = sent.MessageID
	}
	return ref, nil
}

// EditMessage replaces the text and buttons of ref. No actions removes the
// keyboard.
func (m *TelegoMessenger) EditMessage(ctx context.Context, ref MessageRef, text string, actions ...Action) error {
	m.limiter.Take()
	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(ref.ChatID),
		MessageID: ref.MessageID,
		Text:      text,
	}
	if kb := keyboard(actions); kb != nil {
		params.ReplyMarkup = kb
	}
	err := m.withRetry(ctx, fmt.Sprintf("[Edit Chat:%d Msg:%d]", ref.ChatID, ref.MessageID), func() error {
		_, editErr := m.bot.EditMessageText(ctx, params)
		return editErr
	})
	if err != nil {
		return fmt.Errorf("failed to edit message %d in chat %d: %w", ref.MessageID, ref.ChatID, err)
	}
	return nil
}

func keyboard(actions []Action) *telego.InlineKeyboardMarkup {
	if len(actions) == 0 {
		return nil
	}
	buttons := make([]telego.InlineKeyboardButton, 0, len(actions))
	for _, a := range actions {
		buttons = append(buttons, tu.InlineKeyboardButton(a.Label).WithCallbackData(a.Data))
	}
	return &telego.InlineKeyboardMarkup{
		InlineKeyboard: [][]telego.InlineKeyboardButton{tu.InlineKeyboardRow(buttons...)},
	}
}
