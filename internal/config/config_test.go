package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryConfig_defaultsWhenUnset(t *testing.T) {
	t.Setenv("BUSY_SLEEP", "")
	t.Setenv("CHECKUP_INTERVAL", "")

	cfg, err := LoadRegistryConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultRegistryConfig(), cfg)
}

func TestLoadRegistryConfig_overridesFromEnv(t *testing.T) {
	t.Setenv("BUSY_SLEEP", "1m")
	t.Setenv("CHECKUP_INTERVAL", "10s")

	cfg, err := LoadRegistryConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.BusySleep)
	assert.Equal(t, 10*time.Second, cfg.CheckupInterval)
}

func TestLoadRegistryConfig_malformedDurationIsFatal(t *testing.T) {
	t.Setenv("BUSY_SLEEP", "not-a-duration")

	_, err := LoadRegistryConfig()
	assert.Error(t, err)
}

func TestLoadFinderConfig_rejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("PROJECTS_FETCHING_LIMIT", "0")

	_, err := LoadFinderConfig()
	assert.Error(t, err)
}

func TestLoadFinderConfig_overridesFromEnv(t *testing.T) {
	t.Setenv("PROJECTS_FETCHING_LIMIT", "5")
	t.Setenv("RETRY_INTERVAL", "30s")
	t.Setenv("PER_CATEGORY_CONCURRENCY_LIMIT", "4")
	t.Setenv("ZOMBIE_SCAN_INTERVAL", "2m")
	t.Setenv("ZOMBIE_THRESHOLD", "15m")

	cfg, err := LoadFinderConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ProjectsFetchingLimit)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
	assert.Equal(t, 4, cfg.PerCategoryConcurrencyLimit)
	assert.Equal(t, 2*time.Minute, cfg.ZombieScanInterval)
	assert.Equal(t, 15*time.Minute, cfg.ZombieThreshold)
}

func TestLoadSenderConfig_bootstrapEndpointsParsedAndTrimmed(t *testing.T) {
	t.Setenv("SUBSCRIBER_ENDPOINTS_AWAITING_GENERATION", "http://a:9000/events, http://b:9000/events")

	cfg, err := LoadSenderConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:9000/events", "http://b:9000/events"}, cfg.BootstrapEndpoints["AWAITING_GENERATION"])
	assert.NotContains(t, cfg.BootstrapEndpoints, "AWAITING_TRANSFORMATION")
}

func TestLoadHTTPConfig_defaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("GIN_MODE", "")

	cfg, err := LoadHTTPConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "release", cfg.GinMode)
}

func TestLoadDatabaseConfig_rejectsIdleExceedingOpen(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "5")
	t.Setenv("DB_MAX_IDLE_CONNS", "10")

	_, err := LoadDatabaseConfig()
	assert.Error(t, err)
}

func TestLoadDatabaseConfig_rejectsZeroOpenConns(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "0")
	t.Setenv("DB_MAX_IDLE_CONNS", "0")

	_, err := LoadDatabaseConfig()
	assert.Error(t, err)
}
