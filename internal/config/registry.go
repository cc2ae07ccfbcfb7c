package config

import (
	"fmt"
	"time"
)

// RegistryConfig tunes the subscribers registry (spec.md §4.4).
type RegistryConfig struct {
	// BusySleep is how long markBusy keeps a subscriber unavailable.
	BusySleep time.Duration
	// CheckupInterval is how often the registry's background checker
	// scans for expired busy windows.
	CheckupInterval time.Duration
}

// DefaultRegistryConfig returns the built-in registry defaults.
func DefaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		BusySleep:       30 * time.Second,
		CheckupInterval: 5 * time.Second,
	}
}

// LoadRegistryConfig loads RegistryConfig from the environment.
func LoadRegistryConfig() (*RegistryConfig, error) {
	cfg := DefaultRegistryConfig()

	if v := getEnvOrDefault("BUSY_SLEEP", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BUSY_SLEEP: %w", err)
		}
		cfg.BusySleep = d
	}
	if v := getEnvOrDefault("CHECKUP_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECKUP_INTERVAL: %w", err)
		}
		cfg.CheckupInterval = d
	}
	return cfg, nil
}
