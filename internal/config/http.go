package config

// HTTPConfig tunes the event endpoint's HTTP ingress (spec.md §4.6).
type HTTPConfig struct {
	Port    string
	GinMode string
}

// DefaultHTTPConfig returns the built-in HTTP defaults.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Port:    "8080",
		GinMode: "release",
	}
}

// LoadHTTPConfig loads HTTPConfig from the environment.
func LoadHTTPConfig() (*HTTPConfig, error) {
	cfg := DefaultHTTPConfig()
	cfg.Port = getEnvOrDefault("HTTP_PORT", cfg.Port)
	cfg.GinMode = getEnvOrDefault("GIN_MODE", cfg.GinMode)
	return cfg, nil
}
