package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	telegoBot "signaler-bot/bot"
	"signaler-bot/internal/access"
	"signaler-bot/internal/bootstrap"
	"signaler-bot/internal/config"
	"signaler-bot/internal/database"
	"signaler-bot/internal/database/sqlite"
	"signaler-bot/internal/gate"
	"signaler-bot/internal/handlers"
	"signaler-bot/internal/locales"
	"signaler-bot/internal/metrics"
	"signaler-bot/internal/notify"
	"signaler-bot/internal/spam"

	sentry "github.com/getsentry/sentry-go"
	telego "github.com/mymmrac/telego"
)

// openRegistry connects the configured storage driver. The returned func
// releases it.
func openRegistry(ctx context.Context, cfg *config.Config) (database.UserRepository, func(), error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		client, db, err := database.ConnectDB(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		repo := database.NewMongoUserRepository(db)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repo, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Printf("Error disconnecting from MongoDB: %v", err)
				sentry.CaptureException(err)
			} else {
				log.Println("Disconnected from MongoDB.")
			}
		}, nil
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Using SQLite registry at %s", cfg.SQLitePath)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Printf("Error closing SQLite registry: %v", err)
			}
		}, nil
	case config.StorageMemory:
		log.Println("WARN: Using in-memory registry, state is lost on restart")
		return database.NewMemoryUserRepository(nil), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	locales.Init(cfg.DefaultLanguage)

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRegistry, err := openRegistry(ctx, cfg)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to open user registry: %v", err)
	}
	defer closeRegistry()

	// No command is accepted before an owner exists.
	if _, err := bootstrap.EnsureOwner(ctx, repo, bootstrap.PrimaryOwner{
		ID:          cfg.PrimaryOwnerID,
		DisplayName: cfg.PrimaryOwnerName,
	}); err != nil {
		if errors.Is(err, bootstrap.ErrConfigurationMissing) {
			log.Printf("Registry has no owner: set PRIMARY_OWNER_ID")
		}
		sentry.CaptureException(err)
		sentry.Flush(2 * time.Second)
		log.Fatalf("Bootstrap failed: %v", err)
	}

	var bot *telego.Bot
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}

	governor, err := spam.NewGovernor(cfg.Cooldowns())
	if err != nil {
		log.Fatalf("Invalid spam cooldowns: %v", err)
	}
	messenger := notify.NewTelegoMessenger(bot, cfg.OutboundRate)
	owners := notify.NewOwnerNotifier(repo, messenger)
	svc := access.NewService(repo)
	commandGate := gate.New(svc, governor, owners)
	messageHandler := handlers.NewMessageHandler(bot, messenger, svc, commandGate, owners)

	if err := messageHandler.SetupCommands(ctx); err != nil {
		log.Printf("WARN: %v", err)
		sentry.CaptureException(err)
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Metrics server error: %v", err)
				sentry.CaptureException(err)
			}
		}()
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to start long polling: %v", err)
	}

	appBot, err := telegoBot.New(telegoBot.BotDeps{
		UpdatesChan: updates,
		Handler:     messageHandler,
		Debug:       cfg.Debug,
		UpdateRate:  cfg.OutboundRate,
	})
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal(err)
	}

	log.Printf("Bot started (version %s, storage %s)", cfg.Version, cfg.StorageDriver)
	appBot.Start(ctx)
	log.Println("Bot shutdown complete.")
}
