package config

import (
	"fmt"
	"strings"
	"time"
)

// SenderConfig tunes the HTTP egress to subscribers (spec.md §4.5) and
// carries the bootstrap subscriber endpoints per category.
type SenderConfig struct {
	// RequestTimeout bounds every outbound HTTP call to a subscriber.
	RequestTimeout time.Duration
	// BootstrapEndpoints maps a category name to the subscriber URLs that
	// are registered at startup. No HTTP route registers further
	// subscribers at runtime.
	BootstrapEndpoints map[string][]string
}

// DefaultSenderConfig returns the built-in sender defaults.
func DefaultSenderConfig() *SenderConfig {
	return &SenderConfig{
		RequestTimeout:     5 * time.Second,
		BootstrapEndpoints: map[string][]string{},
	}
}

// LoadSenderConfig loads SenderConfig from the environment.
//
// Bootstrap endpoints are read from SUBSCRIBER_ENDPOINTS_<CATEGORY>, a
// comma-separated list of URLs, e.g.
// SUBSCRIBER_ENDPOINTS_AWAITING_GENERATION=http://worker-a:9000/events,http://worker-b:9000/events
func LoadSenderConfig() (*SenderConfig, error) {
	cfg := DefaultSenderConfig()

	if v := getEnvOrDefault("REQUEST_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}

	for _, category := range []string{"AWAITING_GENERATION", "AWAITING_TRANSFORMATION", "EVENTS_STATUS_CHANGE"} {
		v := getEnvOrDefault("SUBSCRIBER_ENDPOINTS_"+category, "")
		if v == "" {
			continue
		}
		var urls []string
		for _, u := range strings.Split(v, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			cfg.BootstrapEndpoints[category] = urls
		}
	}
	return cfg, nil
}
