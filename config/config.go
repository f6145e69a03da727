// Package config loads the engine's configuration from environment
// variables, with a best-effort .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all engine configuration.
type Config struct {
	// Server
	Port        string
	Environment string

	// Database
	Database DatabaseConfig

	// Ledger
	Ledger LedgerConfig

	// Price feed
	Feed FeedConfig

	// Monitor loop
	Monitor MonitorConfig

	// Logging
	Logging LoggingConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type LedgerConfig struct {
	// URL is a full connection string. When set it overrides the
	// individual Database fields.
	URL        string
	ServiceKey string
}

type FeedConfig struct {
	URL string
}

type MonitorConfig struct {
	Interval   time.Duration
	PriceStale time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "3001"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "propfirm"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},

		Ledger: LedgerConfig{
			URL:        getEnv("LEDGER_URL", ""),
			ServiceKey: getEnv("LEDGER_SERVICE_KEY", ""),
		},

		Feed: FeedConfig{
			URL: getEnv("FEED_URL",
				"wss://stream.binance.com:9443/stream?streams=btcusdt@bookTicker/ethusdt@bookTicker"),
		},

		Monitor: MonitorConfig{
			Interval:   time.Duration(getEnvAsInt("MONITOR_INTERVAL_MS", 1000)) * time.Millisecond,
			PriceStale: time.Duration(getEnvAsInt("PRICE_STALE_MS", 30000)) * time.Millisecond,
		},

		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the Postgres connection string for the ledger. A full
// LEDGER_URL wins over the individual DB_* parts.
func (c *Config) DSN() string {
	if c.Ledger.URL != "" {
		return c.Ledger.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL_MS must be positive")
	}
	if c.Monitor.PriceStale <= 0 {
		return fmt.Errorf("PRICE_STALE_MS must be positive")
	}
	if c.Environment == "production" {
		if c.Ledger.URL == "" && c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD or LEDGER_URL is required in production")
		}
		if c.Ledger.ServiceKey == "" {
			log.Println("WARNING: LEDGER_SERVICE_KEY not set - atomic RPC surface runs without a service credential")
		}
	}

	return nil
}

// Helper functions
func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}
