package telegoapi

import (
	"context"

	"github.com/mymmrac/telego"
)

// BotAPI is the subset of telego.Bot the bot uses.
// It is satisfied by *telego.Bot and by mocks in tests.
type BotAPI interface {
	GetMe(ctx context.Context) (*telego.User, error)
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

var _ BotAPI = (*telego.Bot)(nil)
