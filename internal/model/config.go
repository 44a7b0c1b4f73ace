package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// HistoryPolicy controls how a notification history reload combines with
// records pushed while the reload was in flight.
type HistoryPolicy string

const (
	// HistoryMerge keeps pushed records the reload response does not contain.
	HistoryMerge HistoryPolicy = "merge"

	// HistoryReplace overwrites the collection with the response.
	HistoryReplace HistoryPolicy = "replace"
)

// APIConfig holds REST client settings.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// PushConfig holds push-channel settings.
type PushConfig struct {
	// URL is the Socket.IO endpoint. When empty it is derived from the
	// API base URL.
	URL string `mapstructure:"url" yaml:"url"`

	ReconnectMinMS int `mapstructure:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMS int `mapstructure:"reconnect_max_ms" yaml:"reconnect_max_ms"`

	// Buffer is the capacity of each event channel.
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// SyncConfig holds synchroniser settings.
type SyncConfig struct {
	// PollIntervalSec reloads history periodically; 0 disables polling.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	ResyncOnReconnect    bool `mapstructure:"resync_on_reconnect" yaml:"resync_on_reconnect"`
	ResyncMinIntervalSec int  `mapstructure:"resync_min_interval_sec" yaml:"resync_min_interval_sec"`
}

// NotificationsConfig holds notification store settings.
type NotificationsConfig struct {
	HistoryPolicy HistoryPolicy `mapstructure:"history_policy" yaml:"history_policy"`
}

// CacheConfig controls the local SQLite snapshot.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Push          PushConfig          `mapstructure:"push" yaml:"push"`
	Sync          SyncConfig          `mapstructure:"sync" yaml:"sync"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Cache         CacheConfig         `mapstructure:"cache" yaml:"cache"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
	Metrics       MetricsConfig       `mapstructure:"metrics" yaml:"metrics"`
}

// envPrefix is the prefix for environment overrides, e.g.
// AGRIASSIST_API_BASE_URL.
const envPrefix = "AGRIASSIST"

// ConfigDir returns ~/.config/agriassist, falling back to the working
// directory when the home directory cannot be resolved.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "agriassist")
}

// DefaultConfigPath returns the default path for the configuration file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaults lists every key with its default value. It is applied to viper
// and mirrored by DefaultAppConfig.
var defaults = map[string]any{
	"api.base_url":                 "http://localhost:5000/api",
	"api.timeout_sec":              30,
	"api.max_retries":              3,
	"push.url":                     "",
	"push.reconnect_min_ms":        500,
	"push.reconnect_max_ms":        30000,
	"push.buffer":                  64,
	"sync.poll_interval_sec":       300,
	"sync.resync_on_reconnect":     true,
	"sync.resync_min_interval_sec": 10,
	"notifications.history_policy": string(HistoryMerge),
	"cache.enabled":                true,
	"cache.path":                   "",
	"log.level":                    "info",
	"log.format":                   "console",
	"log.file":                     "",
	"metrics.addr":                 "",
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:5000/api",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Push: PushConfig{
			ReconnectMinMS: 500,
			ReconnectMaxMS: 30000,
			Buffer:         64,
		},
		Sync: SyncConfig{
			PollIntervalSec:      300,
			ResyncOnReconnect:    true,
			ResyncMinIntervalSec: 10,
		},
		Notifications: NotificationsConfig{HistoryPolicy: HistoryMerge},
		Cache:         CacheConfig{Enabled: true},
		Log:           LogConfig{Level: "info", Format: "console"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded first so that AGRIASSIST_*
// variables can override file values. A missing config file yields the
// defaults.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// normalize fills derived values and rejects settings that cannot work.
func (c *AppConfig) normalize() error {
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	switch c.Notifications.HistoryPolicy {
	case "":
		c.Notifications.HistoryPolicy = HistoryMerge
	case HistoryMerge, HistoryReplace:
	default:
		return fmt.Errorf(
			"notifications.history_policy must be %q or %q, got %q",
			HistoryMerge, HistoryReplace, c.Notifications.HistoryPolicy,
		)
	}

	if c.Push.ReconnectMinMS <= 0 {
		c.Push.ReconnectMinMS = 500
	}
	if c.Push.ReconnectMaxMS < c.Push.ReconnectMinMS {
		c.Push.ReconnectMaxMS = c.Push.ReconnectMinMS
	}
	if c.Push.Buffer <= 0 {
		c.Push.Buffer = 64
	}

	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(ConfigDir(), "cache.db")
	}

	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("push", cfg.Push)
	v.Set("sync", cfg.Sync)
	v.Set("notifications", cfg.Notifications)
	v.Set("cache", cfg.Cache)
	v.Set("log", cfg.Log)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
