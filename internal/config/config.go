package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stop-loss placement modes
const (
	StopLossModePlan   = "plan"   // separate normal_plan order
	StopLossModePreset = "preset" // preset stop loss attached to the entry order
)

// State backends
const (
	StateBackendGorm = "gorm"
	StateBackendGCS  = "gcs"
)

// Config holds all configuration for the bot
type Config struct {
	// Venue credentials
	APIKey        string
	APISecret     string
	APIPassphrase string

	// Venue endpoints
	APIURL     string
	WSURL      string
	MarginCoin string

	// Mode
	DryRun bool
	Debug  bool

	// Bracket
	TrailingOffset        decimal.Decimal // trailing-stop trigger distance from fill, e.g. 0.0075
	StopLossOffset        decimal.Decimal // stop-loss trigger distance from fill
	TrailingCallbackRatio decimal.Decimal
	TrailingTriggerType   string // fill_price or mark_price
	StopLossMode          string

	// HTTP behaviour
	HTTPTimeout       time.Duration
	OrderPollInterval time.Duration
	OrderPollTimeout  time.Duration

	// Inbound HTTP trigger
	HTTPAddr         string
	DefaultOrderSize decimal.Decimal

	// MACD signal engine
	MACDSymbol      string
	MACDGranularity string
	MACDCandleLimit int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	MACDOrderSize   decimal.Decimal
	MACDInterval    time.Duration
	MACDCooldown    time.Duration

	// Open-position heartbeat, 0 disables the timer
	HeartbeatInterval time.Duration

	// Private order stream
	StreamEnabled bool
	StreamReentry bool

	// Email
	EmailFrom     string
	EmailPassword string
	EmailTo       string
	SMTPHost      string
	SMTPPort      int

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// State persistence
	StateBackend       string
	DatabasePath       string
	GCSBucket          string
	GCSCredentialsFile string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		APIKey:        os.Getenv("API_KEY"),
		APISecret:     os.Getenv("API_SECRET"),
		APIPassphrase: os.Getenv("API_PASSPHRASE"),

		APIURL:     getEnv("BITGET_API_URL", "https://api.bitget.com"),
		WSURL:      getEnv("BITGET_WS_URL", "wss://ws.bitget.com/v2/ws/private"),
		MarginCoin: getEnv("MARGIN_COIN", "USDT"),

		DryRun: getEnvBool("DRY_RUN", false),
		Debug:  getEnvBool("DEBUG", false),

		TrailingOffset:        getEnvDecimal("TRAILING_OFFSET", decimal.NewFromFloat(0.0075)),
		StopLossOffset:        getEnvDecimal("STOP_LOSS_OFFSET", decimal.NewFromFloat(0.0075)),
		TrailingCallbackRatio: getEnvDecimal("TRAILING_CALLBACK_RATIO", decimal.NewFromFloat(0.15)),
		TrailingTriggerType:   getEnv("TRAILING_TRIGGER_TYPE", "fill_price"),
		StopLossMode:          strings.ToLower(getEnv("STOP_LOSS_MODE", StopLossModePlan)),

		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		OrderPollInterval: getEnvDuration("ORDER_POLL_INTERVAL", time.Second),
		OrderPollTimeout:  getEnvDuration("ORDER_POLL_TIMEOUT", 10*time.Second),

		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DefaultOrderSize: getEnvDecimal("DEFAULT_ORDER_SIZE", decimal.Zero),

		MACDSymbol:      os.Getenv("MACD_SYMBOL"),
		MACDGranularity: getEnv("MACD_GRANULARITY", "1m"),
		MACDCandleLimit: getEnvInt("MACD_CANDLE_LIMIT", 100),
		MACDFast:        getEnvInt("MACD_FAST", 12),
		MACDSlow:        getEnvInt("MACD_SLOW", 26),
		MACDSignal:      getEnvInt("MACD_SIGNAL", 9),
		MACDOrderSize:   getEnvDecimal("MACD_ORDER_SIZE", decimal.Zero),
		MACDInterval:    getEnvDuration("MACD_INTERVAL", time.Minute),
		MACDCooldown:    getEnvDuration("MACD_COOLDOWN", time.Hour),

		HeartbeatInterval: getEnvDuration("HEARTBEAT_INTERVAL", 0),

		StreamEnabled: getEnvBool("STREAM_ENABLED", false),
		StreamReentry: getEnvBool("STREAM_REENTRY", false),

		EmailFrom:     os.Getenv("EMAIL_FROM"),
		EmailPassword: os.Getenv("EMAIL_PASSWORD"),
		EmailTo:       os.Getenv("EMAIL_TO"),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		StateBackend:       strings.ToLower(getEnv("STATE_BACKEND", StateBackendGorm)),
		DatabasePath:       getEnv("DATABASE_PATH", "data/bitbot.db"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSCredentialsFile: os.Getenv("GCS_CREDENTIALS_FILE"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a trading flow
func (c *Config) Validate() error {
	if !c.DryRun && (c.APIKey == "" || c.APISecret == "" || c.APIPassphrase == "") {
		return fmt.Errorf("API_KEY, API_SECRET and API_PASSPHRASE are required unless DRY_RUN is set")
	}
	if !c.TrailingOffset.IsPositive() {
		return fmt.Errorf("TRAILING_OFFSET must be positive, got %s", c.TrailingOffset)
	}
	if !c.StopLossOffset.IsPositive() || c.StopLossOffset.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("STOP_LOSS_OFFSET must be in (0, 1), got %s", c.StopLossOffset)
	}
	if c.StopLossMode != StopLossModePlan && c.StopLossMode != StopLossModePreset {
		return fmt.Errorf("STOP_LOSS_MODE must be %q or %q, got %q", StopLossModePlan, StopLossModePreset, c.StopLossMode)
	}
	if c.MACDFast <= 0 || c.MACDSlow <= 0 || c.MACDSignal <= 0 {
		return fmt.Errorf("MACD periods must be positive")
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("MACD_FAST (%d) must be less than MACD_SLOW (%d)", c.MACDFast, c.MACDSlow)
	}
	if c.OrderPollInterval <= 0 || c.OrderPollTimeout < c.OrderPollInterval {
		return fmt.Errorf("ORDER_POLL_INTERVAL must be positive and not exceed ORDER_POLL_TIMEOUT")
	}
	switch c.StateBackend {
	case StateBackendGorm:
	case StateBackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required when STATE_BACKEND=gcs")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	return nil
}

// EmailEnabled reports whether SMTP notification is configured
func (c *Config) EmailEnabled() bool {
	return c.EmailFrom != "" && c.EmailPassword != "" && c.EmailTo != ""
}

// TelegramEnabled reports whether Telegram notification is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
