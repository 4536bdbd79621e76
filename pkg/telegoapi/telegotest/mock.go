// Package telegotest provides a testify mock of telegoapi.BotAPI.
package telegotest

import (
	"context"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/mock"
)

// MockBot is a mock implementing the telegoapi.BotAPI interface.
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

// SentTexts returns the text of every SendMessage call addressed to chatID.
func (m *MockBot) SentTexts(chatID int64) []string {
	var texts []string
	for _, call := range m.Calls {
		if call.Method != "SendMessage" {
			continue
		}
		params, ok := call.Arguments.Get(1).(*telego.SendMessageParams)
		if ok && params.ChatID.ID == chatID {
			texts = append(texts, params.Text)
		}
	}
	return texts
}
