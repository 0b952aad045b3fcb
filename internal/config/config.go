// Package config loads and validates the client configuration from an optional
// observer.yaml file and OBSERVER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: OBSERVER_STORE_URL → store.url.
const EnvPrefix = "OBSERVER"

// DefaultStoreURL is the production marker store.
const DefaultStoreURL = "https://api.change-observer.com"

// Config holds all configuration values for the marker client.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
	Validation ValidationConfig `mapstructure:"validation"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// StoreConfig describes the remote marker store.
type StoreConfig struct {
	// URL is the base URL every endpoint path is resolved against.
	URL string `mapstructure:"url"`

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxResponseBytes caps the size of a response body.
	MaxResponseBytes int64 `mapstructure:"max_response_bytes"`
}

type CacheConfig struct {
	// StaleTime is how long a cached read is served without a background
	// refresh. Zero revalidates on every read.
	StaleTime time.Duration `mapstructure:"stale_time"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is json or text.
	Format string `mapstructure:"format"`
}

type ValidationConfig struct {
	// CheckRange rejects coordinates outside the geographic range.
	CheckRange bool `mapstructure:"check_range"`
}

type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

// Load reads configuration from defaults, the first observer.yaml found in
// dirs, and the environment, in increasing priority. With no dirs it looks in
// the working directory and $HOME/.config/change-observer. A missing file is
// not an error.
func Load(dirs ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("store.url", DefaultStoreURL)
	v.SetDefault("store.timeout", 30*time.Second)
	v.SetDefault("store.max_response_bytes", int64(10<<20))
	v.SetDefault("cache.stale_time", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("validation.check_range", false)
	v.SetDefault("watch.interval", 30*time.Second)
	v.SetDefault("metrics.addr", "")

	if len(dirs) == 0 {
		dirs = []string{"."}
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".config", "change-observer"))
		}
	}
	v.SetConfigName("observer")
	v.SetConfigType("yaml")
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field in a single error.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Store.URL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("store.url must be an absolute URL, got %q", c.Store.URL))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("store.timeout must be positive, got %s", c.Store.Timeout))
	}
	if c.Store.MaxResponseBytes <= 0 {
		errs = append(errs, fmt.Errorf("store.max_response_bytes must be positive, got %d", c.Store.MaxResponseBytes))
	}
	if c.Cache.StaleTime < 0 {
		errs = append(errs, fmt.Errorf("cache.stale_time must not be negative, got %s", c.Cache.StaleTime))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
