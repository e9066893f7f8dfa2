// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// DBDriver selects the storage backend: "sqlite", "postgres" or "memory".
	DBDriver string

	// DBPath is the SQLite database file path.
	DBPath string

	// DatabaseURL is the PostgreSQL DSN, required when DBDriver is postgres.
	DatabaseURL string

	// JWTSecret signs and verifies session tokens.
	JWTSecret string

	// DefaultCurrency seeds zeroed ledger rows before any expense names one.
	DefaultCurrency string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		DBDriver:        getEnv("DB_DRIVER", "sqlite"),
		DBPath:          getEnv("DB_PATH", "./data/splitledger.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required with DB_DRIVER=postgres")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
