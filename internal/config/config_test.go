package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/change-observer/internal/config"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORE_URL", "STORE_TIMEOUT", "STORE_MAX_RESPONSE_BYTES", "CACHE_STALE_TIME",
		"LOG_LEVEL", "LOG_FORMAT", "VALIDATION_CHECK_RANGE", "WATCH_INTERVAL", "METRICS_ADDR",
	} {
		key := config.EnvPrefix + "_" + k
		if v, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { _ = os.Setenv(key, v) })
		}
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "observer.yaml"), []byte(body), 0o644))
	return dir
}

// TestLoad_defaults verifies the values used when no file or env var is set.
func TestLoad_defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, config.DefaultStoreURL, cfg.Store.URL)
	assert.Equal(t, 30*time.Second, cfg.Store.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Store.MaxResponseBytes)
	assert.Equal(t, time.Duration(0), cfg.Cache.StaleTime)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Validation.CheckRange)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Empty(t, cfg.Metrics.Addr)
}

// TestLoad_file verifies that observer.yaml overrides the defaults.
func TestLoad_file(t *testing.T) {
	clearEnv(t)
	dir := writeFile(t, `
store:
  url: http://localhost:3000
  timeout: 5s
cache:
  stale_time: 1m
log:
  level: debug
  format: text
validation:
  check_range: true
metrics:
  addr: ":9090"
`)

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.Store.URL)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Validation.CheckRange)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval, "unset keys keep their default")
}

// TestLoad_envOverridesFile verifies that OBSERVER_* variables win over the file.
func TestLoad_envOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := writeFile(t, "store:\n  url: http://from-file\n")
	t.Setenv("OBSERVER_STORE_URL", "https://from-env.example.com")
	t.Setenv("OBSERVER_WATCH_INTERVAL", "2m")

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.Store.URL)
	assert.Equal(t, 2*time.Minute, cfg.Watch.Interval)
}

// TestLoad_malformedFile verifies that a file that exists but does not parse is an error.
func TestLoad_malformedFile(t *testing.T) {
	clearEnv(t)
	dir := writeFile(t, "store: [unclosed\n")

	_, err := config.Load(dir)

	require.ErrorContains(t, err, "read config file")
}

// TestLoad_invalidValues verifies that every bad field is named in one error.
func TestLoad_invalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OBSERVER_STORE_URL", "not a url")
	t.Setenv("OBSERVER_LOG_LEVEL", "loud")
	t.Setenv("OBSERVER_STORE_TIMEOUT", "0s")

	_, err := config.Load(t.TempDir())

	require.Error(t, err)
	assert.ErrorContains(t, err, "store.url")
	assert.ErrorContains(t, err, "log.level")
	assert.ErrorContains(t, err, "store.timeout")
}
