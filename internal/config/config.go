package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMongo  = "mongo"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string `env:"APP_ENV" envDefault:"development"`
	Debug           bool   `env:"DEBUG" envDefault:"false"`
	Version         string `env:"VERSION" envDefault:"dev"`
	BotToken        string `env:"TELEGRAM_BOT_TOKEN"`
	SentryDSN       string `env:"SENTRY_DSN"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	MetricsAddr     string `env:"METRICS_ADDR"`
	OutboundRate    int    `env:"OUTBOUND_RATE" envDefault:"20"`

	// PrimaryOwnerID seeds the registry when no owner exists yet.
	PrimaryOwnerID   int64  `env:"PRIMARY_OWNER_ID"`
	PrimaryOwnerName string `env:"PRIMARY_OWNER_NAME" envDefault:"owner"`

	StorageDriver   string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	MongoDBURI      string `env:"MONGODB_URI"`
	MongoDBDatabase string `env:"MONGODB_DATABASE"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"signaler.db"`

	// SpamCooldowns is the cooldown ladder in seconds, indexed by spam level.
	SpamCooldowns []int `env:"SPAM_COOLDOWNS" envDefault:"5,15,45,90" envSeparator:","`
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present but prioritizes
// actual environment variables set in the system (e.g., by Docker).
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SentryDSN == "" {
		log.Println("Warning: SENTRY_DSN is not set. Error tracking disabled.")
	}
	if cfg.PrimaryOwnerID == 0 {
		log.Println("Warning: PRIMARY_OWNER_ID is not set. Startup fails if the registry has no owner.")
	}
	return cfg, nil
}

// Validate checks the essential variables and the storage selection.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	switch c.StorageDriver {
	case StorageMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
		if c.MongoDBDatabase == "" {
			return fmt.Errorf("MONGODB_DATABASE is required")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.OutboundRate <= 0 {
		return fmt.Errorf("OUTBOUND_RATE must be positive, got %d", c.OutboundRate)
	}
	if len(c.SpamCooldowns) == 0 {
		return fmt.Errorf("SPAM_COOLDOWNS must list at least one cooldown")
	}
	for i, s := range c.SpamCooldowns {
		if s < 0 {
			return fmt.Errorf("invalid SPAM_COOLDOWNS entry %d: %s", i, strconv.Itoa(s))
		}
	}
	return nil
}

// Cooldowns returns the cooldown ladder as durations.
func (c *Config) Cooldowns() []time.Duration {
	out := make([]time.Duration, len(c.SpamCooldowns))
	for i, s := range c.SpamCooldowns {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}
