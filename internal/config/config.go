// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	// Port the HTTP server listens on.
	Port string

	// DatabasePath is the SQLite database file.
	DatabasePath string

	// JWTSecret signs session tokens. Required.
	JWTSecret string
	// TokenDuration is how long issued tokens stay valid.
	TokenDuration time.Duration

	// ExchangeAPIURL and ExchangeAPIKey configure the rate provider. An
	// empty key leaves the provider on its static fallback table.
	ExchangeAPIURL string
	ExchangeAPIKey string
	// RateCacheTTL is how long fetched rate tables are reused.
	RateCacheTTL time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded .env file")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DB_PATH", "./data/velo.db"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ExchangeAPIURL: getEnv("EXCHANGE_API_URL", "https://v6.exchangerate-api.com/v6"),
		ExchangeAPIKey: os.Getenv("EXCHANGE_API_KEY"),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	if cfg.TokenDuration, err = getDuration("TOKEN_DURATION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateCacheTTL, err = getDuration("RATE_CACHE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
