package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port           string
	Env            string // development, staging, production
	Store          string // postgres, memory
	RequestTimeout time.Duration

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Auth
	Auth AuthConfig

	// Notifications
	Notify NotifyConfig

	// Market rules
	Market MarketConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// NotifyConfig holds the outbound notification hook settings
type NotifyConfig struct {
	WebhookURL string
	RatePerSec float64
	Timeout    time.Duration
}

// MarketConfig holds the thresholds and schedules of the forecasting market
type MarketConfig struct {
	// MinRawDataPoints is the minimum number of raw measurements a resource
	// must have before a challenge can be opened for it.
	MinRawDataPoints int
	// MinSubmissionPoints is the minimum number of historical forecast
	// samples a forecaster needs inside the eligibility window.
	MinSubmissionPoints int
	// EligibilityWindowDays is the lookback before challenge start.
	EligibilityWindowDays int
	// ForecastResolution is the leadtime spacing (15m or 60m).
	ForecastResolution time.Duration
	// StrictTransitions enables the explicit session status graph.
	StrictTransitions bool
	// SubmissionsPerMinute caps submission writes per user (redis only).
	SubmissionsPerMinute int

	SessionOpenCron   string
	SessionCloseCron  string
	SessionRunCron    string
	SessionFinishCron string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		Store:          getEnv("STORE", StorePostgres),
		RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", "30s"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "predico"),
		},

		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
			RatePerSec: getEnvAsFloat("NOTIFY_RATE_PER_SEC", 5),
			Timeout:    getEnvAsDuration("NOTIFY_TIMEOUT", "10s"),
		},

		Market: MarketConfig{
			MinRawDataPoints:      getEnvAsInt("MARKET_MIN_RAW_DATA_POINTS", 2880),
			MinSubmissionPoints:   getEnvAsInt("MARKET_MIN_SUBMISSION_POINTS", 2880),
			EligibilityWindowDays: getEnvAsInt("MARKET_ELIGIBILITY_WINDOW_DAYS", 40),
			ForecastResolution:    getEnvAsDuration("MARKET_FORECAST_RESOLUTION", "15m"),
			StrictTransitions:     getEnvAsBool("MARKET_STRICT_TRANSITIONS", false),
			SubmissionsPerMinute:  getEnvAsInt("MARKET_SUBMISSIONS_PER_MINUTE", 60),
			SessionOpenCron:       getEnv("MARKET_SESSION_OPEN_CRON", "0 0 9 * * *"),
			SessionCloseCron:      getEnv("MARKET_SESSION_CLOSE_CRON", "0 0 10 * * *"),
			SessionRunCron:        getEnv("MARKET_SESSION_RUN_CRON", "0 5 10 * * *"),
			SessionFinishCron:     getEnv("MARKET_SESSION_FINISH_CRON", "0 0 8 * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("STORE must be one of: postgres, memory")
	}

	// Database URL is required for the postgres store
	if c.Store == StorePostgres && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Market.ForecastResolution != 15*time.Minute && c.Market.ForecastResolution != time.Hour {
		return fmt.Errorf("MARKET_FORECAST_RESOLUTION must be 15m or 60m")
	}

	if c.Market.EligibilityWindowDays <= 0 {
		return fmt.Errorf("MARKET_ELIGIBILITY_WINDOW_DAYS must be positive")
	}

	if c.Env == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
