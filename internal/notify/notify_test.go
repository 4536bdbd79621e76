package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signaler-bot/internal/access"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/models"
	"signaler-bot/internal/locales"
	"signaler-bot/pkg/telegoapi/telegotest"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	locales.Init(locales.DefaultLanguage)
	m.Run()
}

type sentMessage struct {
	target  int64
	text    string
	actions []Action
}

// recordingMessenger fails for the targets listed in fail.
type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[int64]bool
}

func (r *recordingMessenger) SendMessage(ctx context.Context, targetID int64, text string, actions ...Action) (MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[targetID] {
		return MessageRef{}, errors.New("chat not found")
	}
	r.sent = append(r.sent, sentMessage{target: targetID, text: text, actions: actions})
	return MessageRef{ChatID: targetID, MessageID: len(r.sent)}, nil
}

func (r *recordingMessenger) EditMessage(ctx context.Context, ref MessageRef, text string, actions ...Action) error {
	return nil
}

func seedOwners(t *testing.T, repo database.UserRepository, ids ...int64) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := repo.CreateUser(ctx, id, "owner")
		require.NoError(t, err)
		_, err = repo.UpdateUser(ctx, id, func(u *models.User) error {
			access.Promote(u)
			return nil
		})
		require.NoError(t, err)
	}
}

func TestCallbackData(t *testing.T) {
	data := CallbackData(ActionApprove, 42)
	assert.Equal(t, "access:approve:42", data)

	action, id, ok := ParseCallbackData(data)
	require.True(t, ok)
	assert.Equal(t, ActionApprove, action)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "access:approve", "access:explode:1", "suggest:approve:1", "access:deny:abc"} {
		_, _, ok := ParseCallbackData(bad)
		assert.False(t, ok, bad)
	}
}

func TestOwnerNotifierBroadcast(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryUserRepository(nil)
	seedOwners(t, repo, 1, 2, 3)
	messenger := &recordingMessenger{fail: map[int64]bool{2: true}}
	n := NewOwnerNotifier(repo, messenger)

	offender := models.User{ExternalID: 9, DisplayName: "spammer"}
	err := n.NotifySpamLockout(ctx, offender)
	require.Error(t, err, "the failed owner is reported")

	require.Len(t, messenger.sent, 2, "one failure does not stop the broadcast")
	for _, msg := range messenger.sent {
		assert.Contains(t, msg.text, "spammer")
		assert.Contains(t, msg.text, "9")
		require.Len(t, msg.actions, 3)
		assert.Equal(t, "access:approve:9", msg.actions[0].Data)
		assert.Equal(t, "access:deny:9", msg.actions[1].Data)
		assert.Equal(t, "access:whois:9", msg.actions[2].Data)
	}
	assert.ElementsMatch(t, []int64{1, 3}, []int64{messenger.sent[0].target, messenger.sent[1].target})
}

func TestOwnerNotifierSkipsSubject(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryUserRepository(nil)
	seedOwners(t, repo, 1)
	messenger := &recordingMessenger{}

	require.NoError(t, NewOwnerNotifier(repo, messenger).NotifyAccessRequest(ctx, models.User{ExternalID: 1}))
	assert.Empty(t, messenger.sent)
}

func TestTelegoMessenger(t *testing.T) {
	ctx := context.Background()

	t.Run("SendWithActions", func(t *testing.T) {
		bot := new(telegotest.MockBot)
		bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
			kb, ok := p.ReplyMarkup.(*telego.InlineKeyboardMarkup)
			return ok && p.ChatID.ID == 5 && p.Text == "hi" &&
				len(kb.InlineKeyboard) == 1 && len(kb.InlineKeyboard[0]) == 2 &&
				kb.InlineKeyboard[0][1].CallbackData == "access:deny:7"
		})).Return(&telego.Message{MessageID: 11}, nil).Once()

		m := NewTelegoMessenger(bot, 0)
		ref, err := m.SendMessage(ctx, 5, "hi",
			Action{Label: "Approve", Data: "access:approve:7"},
			Action{Label: "Deny", Data: "access:deny:7"})
		require.NoError(t, err)
		assert.Equal(t, MessageRef{ChatID: 5, MessageID: 11}, ref)
		bot.AssertExpectations(t)
	})

	t.Run("SendWithoutActions", func(t *testing.T) {
		bot := new(telegotest.MockBot)
		bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
			return p.ReplyMarkup == nil
		})).Return(&telego.Message{MessageID: 1}, nil).Once()

		_, err := NewTelegoMessenger(bot, 100).SendMessage(ctx, 5, "plain")
		require.NoError(t, err)
		bot.AssertExpectations(t)
	})

	t.Run("SendFailure", func(t *testing.T) {
		bot := new(telegotest.MockBot)
		bot.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("blocked")).Once()
		_, err := NewTelegoMessenger(bot, 0).SendMessage(ctx, 5, "x")
		assert.Error(t, err)
	})

	t.Run("EditRemovesKeyboard", func(t *testing.T) {
		bot := new(telegotest.MockBot)
		bot.On("EditMessageText", mock.Anything, mock.MatchedBy(func(p *telego.EditMessageTextParams) bool {
			return p.ChatID.ID == 5 && p.MessageID == 11 && p.Text == "done" && p.ReplyMarkup == nil
		})).Return(&telego.Message{}, nil).Once()

		err := NewTelegoMessenger(bot, 0).EditMessage(ctx, MessageRef{ChatID: 5, MessageID: 11}, "done")
		require.NoError(t, err)
		bot.AssertExpectations(t)
	})
}

func TestTelegoMessengerRetriesOnRateLimit(t *testing.T) {
	ctx := context.Background()
	bot := new(telegotest.MockBot)
	bot.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("telego: sendMessage: api: 429 Too Many Requests: retry after 3")).Twice()
	bot.On("SendMessage", mock.Anything, mock.Anything).Return(&telego.Message{MessageID: 9}, nil).Once()

	m := NewTelegoMessenger(bot, 0)
	var waits []time.Duration
	m.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	ref, err := m.SendMessage(ctx, 5, "hi")
	require.NoError(t, err)
	assert.Equal(t, 9, ref.MessageID)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, waits)

	t.Run("GivesUp", func(t *testing.T) {
		bot := new(telegotest.MockBot)
		bot.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("429 Too Many Requests"))
		m := NewTelegoMessenger(bot, 0)
		m.wait = func(context.Context, time.Duration) error { return nil }

		_, err := m.SendMessage(ctx, 5, "hi")
		require.Error(t, err)
		bot.AssertNumberOfCalls(t, "SendMessage", maxSendAttempts)
	})
}

func TestParseRetryAfter(t *testing.T) {
	seconds, ok := parseRetryAfter("api: 429 Too Many Requests: retry after 12")
	assert.True(t, ok)
	assert.Equal(t, 12, seconds)

	_, ok = parseRetryAfter("api: 400 Bad Request")
	assert.False(t, ok)
}
