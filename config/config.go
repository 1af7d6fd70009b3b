package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort         string
	DatabaseURL        string
	PIIHashSalt        string
	Bucket             string
	RawPrefix          string
	CuratedPrefix      string
	QuarantinePrefix   string
	PubSubProjectID    string
	PubSubSubscription string
	LogLevel           string
	MaxQueryLimit      int

	Database DatabaseConfig
	Batch    BatchConfig
}

// DatabaseConfig holds database connection pool configuration
type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultDatabaseConfig returns production-ready pool defaults
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// BatchConfig holds serving-store batch write configuration. BatchSize is
// the store-imposed per-request item limit; the retry fields bound the
// backoff loop for unprocessed items.
type BatchConfig struct {
	BatchSize      int
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
}

// DefaultBatchConfig returns default batch write configuration
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:      25,
		MaxRetries:     5,
		BaseRetryDelay: 200 * time.Millisecond,
		MaxRetryDelay:  5 * time.Second,
	}
}

// LoadConfig loads configuration from the environment, with .env support
// for local development. The PII hash salt must be supplied externally; it
// is never hard-coded or derived from input data.
func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		PIIHashSalt:        getEnv("PII_HASH_SALT", ""),
		Bucket:             getEnv("GCS_BUCKET", ""),
		RawPrefix:          getEnv("RAW_PREFIX", "raw/"),
		CuratedPrefix:      getEnv("CURATED_PREFIX", "curated/"),
		QuarantinePrefix:   getEnv("QUARANTINE_PREFIX", "quarantine/"),
		PubSubProjectID:    getEnv("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: getEnv("PUBSUB_SUBSCRIPTION", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxQueryLimit:      getEnvInt("MAX_QUERY_LIMIT", 100),
		Database:           DefaultDatabaseConfig(),
		Batch:              DefaultBatchConfig(),
	}

	if cfg.PIIHashSalt == "" {
		return nil, fmt.Errorf("PII_HASH_SALT is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, value, fallback)
		return fallback
	}
	return n
}
