// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Transport TransportConfig `mapstructure:"transport"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DirectoryConfig points at the plugin info endpoint.
type DirectoryConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FeedsConfig points at the review feed roots.
type FeedsConfig struct {
	SupportBase string `mapstructure:"support_base"`
}

// TransportConfig governs the proxy fallback chain and fetch behavior.
type TransportConfig struct {
	// ProxyRoutes are URL-rewriting templates tried in order; each
	// takes the percent-encoded target as its sole %s parameter. An
	// empty string means a direct fetch. Order is configuration, not
	// protocol.
	ProxyRoutes    []string `mapstructure:"proxy_routes"`
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
}

// IngestConfig governs pagination and run behavior.
type IngestConfig struct {
	MaxPages          int `mapstructure:"max_pages"`
	MinDelaySeconds   int `mapstructure:"min_delay_seconds"`
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
}

// StorageConfig selects and configures the plugin store.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend      string `mapstructure:"backend"`
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// ArchiveConfig selects and configures the raw payload archive.
type ArchiveConfig struct {
	// Backend is "none", "local" or "gcs".
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for run event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PLUGWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("directory.base_url", "https://api.wordpress.org/plugins/info/1.0")
	v.SetDefault("directory.timeout_seconds", 10)
	v.SetDefault("feeds.support_base", "https://wordpress.org/support")
	v.SetDefault("transport.proxy_routes", []string{""})
	v.SetDefault("transport.user_agent", "plugwatch/0.1")
	v.SetDefault("transport.timeout_seconds", 15)
	v.SetDefault("ingest.max_pages", 10)
	v.SetDefault("ingest.min_delay_seconds", 2)
	v.SetDefault("ingest.run_timeout_seconds", 300)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.table", "plugins")
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}
	if c.Feeds.SupportBase == "" {
		return fmt.Errorf("feeds.support_base is required")
	}
	if len(c.Transport.ProxyRoutes) == 0 {
		return fmt.Errorf("transport.proxy_routes must list at least one route")
	}
	if c.Ingest.MaxPages <= 0 {
		return fmt.Errorf("ingest.max_pages must be > 0")
	}
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set when storage.backend is postgres")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or postgres")
	}
	switch c.Archive.Backend {
	case "none":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.backend is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
		}
	default:
		return fmt.Errorf("archive.backend must be none, local or gcs")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the transport timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Transport.TimeoutSeconds) * time.Second
}

// MinDelay converts the inter-request delay into a duration.
func (c Config) MinDelay() time.Duration {
	return time.Duration(c.Ingest.MinDelaySeconds) * time.Second
}

// RunTimeout converts the per-run time limit into a duration.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Ingest.RunTimeoutSeconds) * time.Second
}
