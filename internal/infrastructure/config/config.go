// internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string
	LogLevel   string

	// Server
	Port         string
	GRPCPort     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BaseURL      string

	// Redis
	RedisURL string

	// MongoDB
	MongoURI      string
	MongoDB       string
	MongoUser     string
	MongoPassword string

	// PostgreSQL
	PostgresURI string

	// Amadeus
	AmadeusAPIKey    string
	AmadeusAPISecret string
	AmadeusBaseURL   string
	LookupTimeout    time.Duration
	MockLatency      time.Duration

	// Gmail
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string
	GmailSender       string

	SkyscannerAffiliateID string

	// Search engine
	BatchSize     int
	BatchDelay    time.Duration
	CacheTTL      time.Duration
	JobTTL        time.Duration
	NotifyTimeout time.Duration

	// Runner
	RunnerConcurrency int
	RunnerMaxAttempts int
	RunnerBackoff     time.Duration
	KeepCompleted     int
	KeepFailed        int
	RetentionSpec     string
	ShutdownTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		Port:         getEnv("PORT", "8080"),
		GRPCPort:     getEnv("GRPC_PORT", "9090"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,
		BaseURL:      getEnv("PUBLIC_BASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		MongoURI:      getEnv("MONGODB_DSN", ""),
		MongoDB:       getEnv("MONGO_DB", "flexsearch"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),

		PostgresURI: getEnv("POSTGRES_DSN", ""),

		AmadeusAPIKey:    getEnv("AMADEUS_API_KEY", ""),
		AmadeusAPISecret: getEnv("AMADEUS_API_SECRET", ""),
		AmadeusBaseURL:   getEnv("AMADEUS_BASE_URL", "https://test.api.amadeus.com"),
		LookupTimeout:    time.Duration(getEnvAsInt("LOOKUP_TIMEOUT_SECONDS", 15)) * time.Second,
		MockLatency:      time.Duration(getEnvAsInt("MOCK_LATENCY_MS", 0)) * time.Millisecond,

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),
		GmailSender:       getEnv("GMAIL_SENDER", ""),

		SkyscannerAffiliateID: getEnv("SKYSCANNER_AFFILIATE_ID", ""),

		BatchSize:     getEnvAsInt("BATCH_SIZE", 10),
		BatchDelay:    time.Duration(getEnvAsInt("BATCH_DELAY_MS", 500)) * time.Millisecond,
		CacheTTL:      time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 600)) * time.Second,
		JobTTL:        time.Duration(getEnvAsInt("JOB_TTL_SECONDS", 3600)) * time.Second,
		NotifyTimeout: time.Duration(getEnvAsInt("NOTIFY_TIMEOUT_SECONDS", 30)) * time.Second,

		RunnerConcurrency: getEnvAsInt("RUNNER_CONCURRENCY", 5),
		RunnerMaxAttempts: getEnvAsInt("RUNNER_MAX_ATTEMPTS", 3),
		RunnerBackoff:     time.Duration(getEnvAsInt("RUNNER_BACKOFF_MS", 5000)) * time.Millisecond,
		KeepCompleted:     getEnvAsInt("KEEP_COMPLETED", 100),
		KeepFailed:        getEnvAsInt("KEEP_FAILED", 200),
		RetentionSpec:     getEnv("RETENTION_SPEC", "@every 10m"),
		ShutdownTimeout:   time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	positive := map[string]int{
		"BATCH_SIZE":          c.BatchSize,
		"RUNNER_CONCURRENCY":  c.RunnerConcurrency,
		"RUNNER_MAX_ATTEMPTS": c.RunnerMaxAttempts,
		"KEEP_COMPLETED":      c.KeepCompleted,
		"KEEP_FAILED":         c.KeepFailed,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("BATCH_DELAY_MS must not be negative")
	}
	if c.CacheTTL <= 0 || c.JobTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS and JOB_TTL_SECONDS must be positive")
	}
	return nil
}

// UseAmadeus reports whether live fare lookups are configured
func (c *Config) UseAmadeus() bool {
	return c.AmadeusAPIKey != "" && c.AmadeusAPISecret != ""
}

// UseGmail reports whether notification mail can be sent
func (c *Config) UseGmail() bool {
	return c.GmailClientID != "" && c.GmailClientSecret != "" && c.GmailRefreshToken != ""
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
