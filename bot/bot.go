// Package bot runs the Telegram update loop.
package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"go.uber.org/ratelimit"
)

// UpdateHandler processes the updates the bot understands.
type UpdateHandler interface {
	HandleCommand(ctx context.Context, message telego.Message) error
	HandleCallbackQuery(ctx context.Context, query telego.CallbackQuery) error
}

// Bot reads updates and hands each one to the handler on its own goroutine.
type Bot struct {
	updatesChan    <-chan telego.Update
	handler        UpdateHandler
	debug          bool
	ratelimiter    ratelimit.Limiter
	processTimeout time.Duration
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	UpdatesChan <-chan telego.Update
	Handler     UpdateHandler
	Debug       bool
	// UpdateRate caps processed updates per second. Zero means 20.
	UpdateRate int
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("update handler cannot be nil")
	}
	rate := deps.UpdateRate
	if rate <= 0 {
		rate = 20
	}
	return &Bot{
		updatesChan:    deps.UpdatesChan,
		handler:        deps.Handler,
		debug:          deps.Debug,
		ratelimiter:    ratelimit.New(rate),
		processTimeout: 30 * time.Second,
	}, nil
}

// handleCommandUpdate processes a message identified as a command.
func (b *Bot) handleCommandUpdate(ctx context.Context, message telego.Message) {
	command := strings.Fields(message.Text)[0]
	logPrefix := fmt.Sprintf("[Cmd:%s User:%d]", strings.TrimPrefix(command, "/"), message.From.ID)
	if b.debug {
		log.Printf("%s Executing handler", logPrefix)
	}
	if err := b.handler.HandleCommand(ctx, message); err != nil {
		log.Printf("%s Handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s handler error: %w", logPrefix, err))
		return
	}
	if b.debug {
		log.Printf("%s Handler finished successfully", logPrefix)
	}
}

// handleCallbackQuery processes an incoming callback query.
func (b *Bot) handleCallbackQuery(ctx context.Context, query telego.CallbackQuery) {
	logPrefix := fmt.Sprintf("[Callback User:%d QueryID:%s]", query.From.ID, query.ID)
	if b.debug {
		log.Printf("%s Received callback query with data: %q", logPrefix, query.Data)
	}
	if err := b.handler.HandleCallbackQuery(ctx, query); err != nil {
		log.Printf("%s Callback handler error: %v", logPrefix, err)
		sentry.CaptureException(fmt.Errorf("%s callback handler error: %w", logPrefix, err))
	}
}

// processUpdate routes incoming updates to the appropriate handlers.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC recovered in processUpdate: %v\n%s", r, debug.Stack())
			sentry.CurrentHub().Recover(r)
			sentry.Flush(time.Second * 2)
		}
	}()

	processingCtx, cancel := context.WithTimeout(ctx, b.processTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		message := *update.Message
		if message.From == nil {
			log.Printf("Ignoring message %d from chat %d without sender", message.MessageID, message.Chat.ID)
			return
		}
		if strings.HasPrefix(message.Text, "/") {
			b.handleCommandUpdate(processingCtx, message)
		} else if b.debug {
			log.Printf("Ignoring non-command message (ID: %d)", message.MessageID)
		}

	case update.CallbackQuery != nil:
		b.handleCallbackQuery(processingCtx, *update.CallbackQuery)

	default:
		if b.debug {
			log.Printf("Ignoring unhandled update type: %+v", update)
		}
	}
}

// Start processes updates until ctx is done or the channel closes, then waits
// for in-flight updates.
func (b *Bot) Start(ctx context.Context) {
	log.Println("Listening for updates...")

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Println("Context done, stopping update processing...")
			wg.Wait()
			log.Println("All update processing finished.")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Println("Updates channel closed.")
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
