package config

import (
	"fmt"
	"strconv"
	"time"
)

// FinderConfig tunes the event finder (spec.md §4.5).
type FinderConfig struct {
	// ProjectsFetchingLimit bounds how many candidate projects the
	// prioritizer is asked to rank per popEvent call.
	ProjectsFetchingLimit int
	// RetryInterval seeds the ToFailure(recoverable) backoff schedule.
	RetryInterval time.Duration
	// PerCategoryConcurrencyLimit bounds how many inbound status-change
	// requests on POST /events are processed concurrently (the process
	// limiter of spec.md §5).
	PerCategoryConcurrencyLimit int
	// ZombieScanInterval is how often the zombie cleaner scans for
	// stalled in-flight events.
	ZombieScanInterval time.Duration
	// ZombieThreshold is how old an in-flight event's delivery row may get
	// before its event is considered a zombie. Whether the subscriber is
	// still registered is not checked.
	ZombieThreshold time.Duration
}

// DefaultFinderConfig returns the built-in finder defaults.
func DefaultFinderConfig() *FinderConfig {
	return &FinderConfig{
		ProjectsFetchingLimit:       3,
		RetryInterval:               10 * time.Second,
		PerCategoryConcurrencyLimit: 1,
		ZombieScanInterval:          time.Minute,
		ZombieThreshold:             5 * time.Minute,
	}
}

// LoadFinderConfig loads FinderConfig from the environment.
func LoadFinderConfig() (*FinderConfig, error) {
	cfg := DefaultFinderConfig()

	if v := getEnvOrDefault("PROJECTS_FETCHING_LIMIT", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid PROJECTS_FETCHING_LIMIT: %q", v)
		}
		cfg.ProjectsFetchingLimit = n
	}
	if v := getEnvOrDefault("RETRY_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_INTERVAL: %w", err)
		}
		cfg.RetryInterval = d
	}
	if v := getEnvOrDefault("PER_CATEGORY_CONCURRENCY_LIMIT", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid PER_CATEGORY_CONCURRENCY_LIMIT: %q", v)
		}
		cfg.PerCategoryConcurrencyLimit = n
	}
	if v := getEnvOrDefault("ZOMBIE_SCAN_INTERVAL", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ZOMBIE_SCAN_INTERVAL: %w", err)
		}
		cfg.ZombieScanInterval = d
	}
	if v := getEnvOrDefault("ZOMBIE_THRESHOLD", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ZOMBIE_THRESHOLD: %w", err)
		}
		cfg.ZombieThreshold = d
	}
	return cfg, nil
}
