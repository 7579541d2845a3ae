package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// DATABASE_URL selects postgres; when unset the scheduler falls back to a
	// local sqlite file at SQLITE_PATH.
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/callwhen.db"`

	WorkerCount         int `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec     int `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	DispatchIntervalSec int `env:"DISPATCH_INTERVAL_SEC" envDefault:"15" validate:"min=1,max=300"`
	MaxDelayDays        int `env:"MAX_DELAY_DAYS" envDefault:"30" validate:"min=1,max=365"`
	CallTimeoutSec      int `env:"CALL_TIMEOUT_SEC" envDefault:"30" validate:"min=1,max=300"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	// Voice gateway. CALLS_PER_MINUTE throttles outbound dials.
	VoiceAPIURL    string `env:"VOICE_API_URL" envDefault:"https://api.voicegw.example.com"`
	VoiceAPIKey    string `env:"VOICE_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	CallsPerMinute int    `env:"CALLS_PER_MINUTE" envDefault:"10" validate:"min=1,max=600"`

	// Email fallback for email-shaped targets.
	ResendAPIKey string `env:"RESEND_API_KEY"`
	ResendFrom   string `env:"RESEND_FROM" envDefault:"reminders@callwhen.dev"`

	TelegramToken string `env:"TELEGRAM_TOKEN"`

	// Calendar feed polling. Disabled when CALENDAR_FEED_URL is empty.
	CalendarFeedURL string `env:"CALENDAR_FEED_URL"`
	CalendarOwnerID string `env:"CALENDAR_OWNER_ID" envDefault:"calendar"`
	CalendarTarget  string `env:"CALENDAR_TARGET"`
	CalendarLeadMin int    `env:"CALENDAR_LEAD_MIN" envDefault:"10" validate:"min=1,max=1440"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel maps LOG_LEVEL to its slog constant.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
