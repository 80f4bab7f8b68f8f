// Package config provides configuration management for the portfolio bot and the snapshot scheduler.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	apperrors "github.com/portfolio-tracker/internal/errors"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Binance   BinanceConfig
	Telegram  TelegramConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Valuation ValuationConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// BinanceConfig holds exchange credentials and client tuning
type BinanceConfig struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec float64
	// WeightBudget is the request weight per minute shared through Redis. Zero disables it.
	WeightBudget int
}

// TelegramConfig holds the chat bot configuration
type TelegramConfig struct {
	BotToken string
	// ChatID restricts the bot to a single chat when set.
	ChatID int64
	Debug  bool
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection URL shared by the pool and the migration tool
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// RedisConfig holds Redis configuration. An empty Host disables caching.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// SchedulerConfig holds snapshot scheduler configuration
type SchedulerConfig struct {
	BotURL      string
	PeerTimeout time.Duration
	CronSpec    string
	// Port of the scheduler's HTTP surface; the bot uses Server.Port.
	Port string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds per-client HTTP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8000"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Binance: BinanceConfig{
			APIKey:         getEnvAny([]string{"BINANCE_API_KEY", "binance_api_key"}, ""),
			APISecret:      getEnvAny([]string{"BINANCE_API_SECRET", "binance_api_secret"}, ""),
			BaseURL:        getEnv("BINANCE_BASE_URL", ""),
			RequestTimeout: getEnvAsDuration("BINANCE_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSec: getEnvAsFloat("BINANCE_REQUESTS_PER_SEC", 10),
			WeightBudget:   getEnvAsInt("BINANCE_WEIGHT_BUDGET", 1200),
		},
		Telegram: TelegramConfig{
			BotToken: getEnvAny([]string{"TELEGRAM_BOT_TOKEN", "telegram_bot_token"}, ""),
			ChatID:   getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			Debug:    getEnvAsBool("TELEGRAM_DEBUG", false),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("DATABASE_HOST", ""),
				Port:           getEnv("DATABASE_PORT", ""),
				Database:       getEnv("DATABASE_NAME", ""),
				User:           getEnv("DATABASE_USER", ""),
				Password:       getEnv("DATABASE_PASSWORD", ""),
				MaxConnections: getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
				MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations/postgres"),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Scheduler: SchedulerConfig{
			BotURL:      strings.TrimRight(getEnv("TELEGRAM_BOT_URL", ""), "/"),
			PeerTimeout: getEnvAsDuration("TELEGRAM_BOT_TIMEOUT", 30*time.Second),
			CronSpec:    getEnv("SNAPSHOT_CRON", "0 0 * * *"),
			Port:        getEnv("SCHEDULER_PORT", "8001"),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	valuation, err := LoadValuationConfig(getEnv("VALUATION_CONFIG", ""))
	if err != nil {
		return nil, err
	}
	config.Valuation = valuation

	return config, nil
}

// ValidateBot checks the values the bot process cannot start without
func (c *Config) ValidateBot() error {
	return requireValues(map[string]string{
		"BINANCE_API_KEY":    c.Binance.APIKey,
		"BINANCE_API_SECRET": c.Binance.APISecret,
		"TELEGRAM_BOT_TOKEN": c.Telegram.BotToken,
	})
}

// ValidateScheduler checks the values the scheduler process cannot start without
func (c *Config) ValidateScheduler() error {
	return requireValues(map[string]string{
		"DATABASE_HOST":     c.Database.Postgres.Host,
		"DATABASE_PORT":     c.Database.Postgres.Port,
		"DATABASE_NAME":     c.Database.Postgres.Database,
		"DATABASE_USER":     c.Database.Postgres.User,
		"DATABASE_PASSWORD": c.Database.Postgres.Password,
		"TELEGRAM_BOT_URL":  c.Scheduler.BotURL,
	})
}

// ValidateDatabase checks the values needed to reach Postgres
func (c *Config) ValidateDatabase() error {
	return requireValues(map[string]string{
		"DATABASE_HOST": c.Database.Postgres.Host,
		"DATABASE_PORT": c.Database.Postgres.Port,
		"DATABASE_NAME": c.Database.Postgres.Database,
		"DATABASE_USER": c.Database.Postgres.User,
	})
}

func requireValues(values map[string]string) error {
	var missing []string
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.NewConfigurationMissingError(missing)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAny returns the first non-empty variable among keys
func getEnvAny(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
