package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// ErrInvalidConfig is returned by Validate for any rejected setting
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds all application configuration
type Config struct {
	Seed             int64   `env:"SEED" envDefault:"42"`
	TransactionCount int     `env:"TRANSACTION_COUNT" envDefault:"100"`
	OutlierCount     int     `env:"OUTLIER_COUNT" envDefault:"5"`
	AmountMean       float64 `env:"AMOUNT_MEAN" envDefault:"100"`
	AmountStdDev     float64 `env:"AMOUNT_STDDEV" envDefault:"50"`
	OutlierMean      float64 `env:"OUTLIER_MEAN" envDefault:"1000"`
	OutlierStdDev    float64 `env:"OUTLIER_STDDEV" envDefault:"200"`
	HourMax          int     `env:"HOUR_MAX" envDefault:"24"`      // exclusive
	FrequencyMin     int     `env:"FREQUENCY_MIN" envDefault:"1"`  // inclusive
	FrequencyMax     int     `env:"FREQUENCY_MAX" envDefault:"10"` // exclusive
	Estimators       int     `env:"ESTIMATORS" envDefault:"100"`
	Contamination    float64 `env:"CONTAMINATION" envDefault:"0.05"` // 0 means auto
	MaxSamples       int     `env:"MAX_SAMPLES" envDefault:"auto"`   // 0 means auto
	ForestSeed       int64   `env:"FOREST_SEED" envDefault:"42"`
	Workers          int     `env:"WORKERS" envDefault:"4"`
	LogLevel         string  `env:"LOG_LEVEL" envDefault:"info"`
	OutputFormat     string  `env:"OUTPUT_FORMAT" envDefault:"table"`

	DB DBConfig

	TelegramBotToken string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64   `env:"TELEGRAM_CHAT_ID"`
	RequestTimeout   int     `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	NotifyRate       float64 `env:"NOTIFY_RATE" envDefault:"1"`      // messages per second
}

// DBConfig holds PostgreSQL connection settings for the run archive
type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.Seed = getEnvInt64WithDefault("SEED", 42)
	cfg.TransactionCount = getEnvIntWithDefault("TRANSACTION_COUNT", 100)
	cfg.OutlierCount = getEnvIntWithDefault("OUTLIER_COUNT", 5)
	cfg.AmountMean = getEnvFloatWithDefault("AMOUNT_MEAN", 100)
	cfg.AmountStdDev = getEnvFloatWithDefault("AMOUNT_STDDEV", 50)
	cfg.OutlierMean = getEnvFloatWithDefault("OUTLIER_MEAN", 1000)
	cfg.OutlierStdDev = getEnvFloatWithDefault("OUTLIER_STDDEV", 200)
	cfg.HourMax = getEnvIntWithDefault("HOUR_MAX", 24)
	cfg.FrequencyMin = getEnvIntWithDefault("FREQUENCY_MIN", 1)
	cfg.FrequencyMax = getEnvIntWithDefault("FREQUENCY_MAX", 10)
	cfg.Estimators = getEnvIntWithDefault("ESTIMATORS", 100)
	cfg.ForestSeed = getEnvInt64WithDefault("FOREST_SEED", 42)
	cfg.Workers = getEnvIntWithDefault("WORKERS", 4)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.OutputFormat = strings.ToLower(getEnvWithDefault("OUTPUT_FORMAT", FormatTable))

	contamination, err := parseAutoFloat(getEnvWithDefault("CONTAMINATION", "0.05"))
	if err != nil {
		return nil, fmt.Errorf("CONTAMINATION: %w", err)
	}
	cfg.Contamination = contamination

	maxSamples, err := parseAutoInt(getEnvWithDefault("MAX_SAMPLES", "auto"))
	if err != nil {
		return nil, fmt.Errorf("MAX_SAMPLES: %w", err)
	}
	cfg.MaxSamples = maxSamples

	cfg.DB = DBConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     getEnvWithDefault("DB_PORT", "5432"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
		SSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0)
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.NotifyRate = getEnvFloatWithDefault("NOTIFY_RATE", 1)

	return &cfg, nil
}

// Validate checks that the generator and model settings are usable
func (c *Config) Validate() error {
	switch {
	case c.TransactionCount < 1:
		return fmt.Errorf("%w: TRANSACTION_COUNT must be at least 1, got %d", ErrInvalidConfig, c.TransactionCount)
	case c.OutlierCount < 0 || c.OutlierCount > c.TransactionCount:
		return fmt.Errorf("%w: OUTLIER_COUNT must be in [0, %d], got %d", ErrInvalidConfig, c.TransactionCount, c.OutlierCount)
	case c.AmountStdDev <= 0:
		return fmt.Errorf("%w: AMOUNT_STDDEV must be positive", ErrInvalidConfig)
	case c.OutlierStdDev <= 0:
		return fmt.Errorf("%w: OUTLIER_STDDEV must be positive", ErrInvalidConfig)
	case c.HourMax < 1:
		return fmt.Errorf("%w: HOUR_MAX must be at least 1", ErrInvalidConfig)
	case c.FrequencyMax <= c.FrequencyMin:
		return fmt.Errorf("%w: FREQUENCY_MAX must exceed FREQUENCY_MIN", ErrInvalidConfig)
	case c.Estimators < 1:
		return fmt.Errorf("%w: ESTIMATORS must be at least 1", ErrInvalidConfig)
	case c.Contamination < 0 || c.Contamination > 0.5:
		return fmt.Errorf("%w: CONTAMINATION must be auto or in (0, 0.5], got %g", ErrInvalidConfig, c.Contamination)
	case c.MaxSamples < 0:
		return fmt.Errorf("%w: MAX_SAMPLES must be auto or positive", ErrInvalidConfig)
	case c.OutputFormat != FormatTable && c.OutputFormat != FormatJSON:
		return fmt.Errorf("%w: unknown OUTPUT_FORMAT %q", ErrInvalidConfig, c.OutputFormat)
	}
	return nil
}

// ArchiveEnabled reports whether runs should be written to PostgreSQL
func (c *Config) ArchiveEnabled() bool {
	return c.DB.Host != ""
}

// NotifyEnabled reports whether flagged rows should be sent to Telegram
func (c *Config) NotifyEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid float, using default")
	}
	return defaultValue
}

// parseAutoFloat maps "auto" to 0. A literal zero is rejected, 0 is reserved for auto.
func parseAutoFloat(value string) (float64, error) {
	if strings.EqualFold(value, "auto") {
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if f == 0 {
		return 0, fmt.Errorf("%w: got %q, use auto or a positive value", ErrInvalidConfig, value)
	}
	return f, nil
}

// parseAutoInt maps "auto" to 0. A literal zero is rejected, 0 is reserved for auto.
func parseAutoInt(value string) (int, error) {
	if strings.EqualFold(value, "auto") {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: got %q, use auto or a positive value", ErrInvalidConfig, value)
	}
	return n, nil
}
