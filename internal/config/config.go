// Package config loads the Event Log service's configuration from
// environment variables, with a .env file loaded first for local
// development, matching cmd/tarsy's startup sequence in the ancestry
// this service was adapted from.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Config is the umbrella configuration object threaded through
// cmd/eventlogd's composition root.
type Config struct {
	Database *DatabaseConfig
	Registry *RegistryConfig
	Finder   *FinderConfig
	Sender   *SenderConfig
	HTTP     *HTTPConfig
}

// Load reads a .env file (if present at envPath) and then builds a Config
// from environment variables, applying defaults for anything unset.
// A malformed duration or integer value is a fatal startup error, per
// spec.md §9.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			slog.Warn("could not load env file, continuing with existing environment", "path", envPath, "error", err)
		} else {
			slog.Info("loaded environment file", "path", envPath)
		}
	}

	db, err := LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	reg, err := LoadRegistryConfig()
	if err != nil {
		return nil, fmt.Errorf("registry config: %w", err)
	}
	finder, err := LoadFinderConfig()
	if err != nil {
		return nil, fmt.Errorf("finder config: %w", err)
	}
	sender, err := LoadSenderConfig()
	if err != nil {
		return nil, fmt.Errorf("sender config: %w", err)
	}
	httpCfg, err := LoadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("http config: %w", err)
	}

	return &Config{
		Database: db,
		Registry: reg,
		Finder:   finder,
		Sender:   sender,
		HTTP:     httpCfg,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
