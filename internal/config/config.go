package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Marketplace core
	AcceptMaxRetries int // bounded retries for the acceptance transaction

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// App defaults
	AppName        string
	WsWriteTimeout time.Duration

	// Rate limiting defaults
	RateLimitBucketSize int
	RateLimitRefillRate int // tokens per second

	// Development helpers
	MockServices bool
	EmailLogFile string
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getEnvInt := func(key string, defaultValue int) (int, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return defaultValue, nil
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer value for %s: %w", key, err)
		}
		return parsed, nil
	}

	getEnvDuration := func(key string, defaultValue time.Duration) (time.Duration, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return defaultValue, nil
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration value for %s: %w", key, err)
		}
		return parsed, nil
	}

	var err error

	cfg.MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "target")

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.JwtSecret = getEnv("JWT_SECRET", "")
	if cfg.JwtSecret == "" && runMode != "test" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if cfg.JwtTTL, err = getEnvDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.ApiPort = getEnv("API_PORT", "8080")

	if cfg.AcceptMaxRetries, err = getEnvInt("ACCEPT_MAX_RETRIES", 3); err != nil {
		return nil, err
	}

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	if cfg.SmtpPort, err = getEnvInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@target.local")

	cfg.AppName = getEnv("APP_NAME", "Target")
	if cfg.WsWriteTimeout, err = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.RateLimitBucketSize, err = getEnvInt("RATE_LIMIT_BUCKET_SIZE", 60); err != nil {
		return nil, err
	}
	if cfg.RateLimitRefillRate, err = getEnvInt("RATE_LIMIT_REFILL_RATE", 10); err != nil {
		return nil, err
	}

	cfg.MockServices = getEnv("MOCK_SERVICES", "false") == "true"
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")

	return cfg, nil
}
