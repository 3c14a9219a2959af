// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/blogshot/internal/headless/detector"
)

// Mirror backends.
const (
	MirrorNone   = "none"
	MirrorMemory = "memory"
	MirrorGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Logging LoggingConfig `mapstructure:"logging"`
	Capture CaptureConfig `mapstructure:"capture"`
	Browser BrowserConfig `mapstructure:"browser"`
	Storage StorageConfig `mapstructure:"storage"`
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// RequestTimeoutSeconds bounds report and artifact requests. Capture
	// requests run for the whole batch and are not bounded.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	ShutdownTimeoutSec    int `mapstructure:"shutdown_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CaptureConfig governs the per-batch pipeline.
type CaptureConfig struct {
	NavTimeoutSec        int      `mapstructure:"nav_timeout_seconds"`
	RenderTimeoutSec     int      `mapstructure:"render_timeout_seconds"`
	MaxConcurrentBatches int      `mapstructure:"max_concurrent_batches"`
	DomainQPS            float64  `mapstructure:"domain_qps"`
	DomainBurst          int      `mapstructure:"domain_burst"`
	Selectors            []string `mapstructure:"selectors"`
}

// BrowserConfig describes how Chrome is launched.
type BrowserConfig struct {
	ExecPath         string   `mapstructure:"exec_path"`
	Headless         bool     `mapstructure:"headless"`
	NoSandbox        bool     `mapstructure:"no_sandbox"`
	UserAgent        string   `mapstructure:"user_agent"`
	ViewportHeight   int      `mapstructure:"viewport_height"`
	LaunchTimeoutSec int      `mapstructure:"launch_timeout_seconds"`
	ExtraFlags       []string `mapstructure:"extra_flags"`
}

// StorageConfig sets where session directories live and how long they stay.
type StorageConfig struct {
	BaseDir              string `mapstructure:"base_dir"`
	RetentionHours       int    `mapstructure:"retention_hours"`
	PruneIntervalMinutes int    `mapstructure:"prune_interval_minutes"`
}

// MirrorConfig selects the optional secondary artifact copy.
type MirrorConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for batch-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BLOGSHOT")
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
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("server.shutdown_timeout_seconds", 15)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("capture.nav_timeout_seconds", 30)
	v.SetDefault("capture.render_timeout_seconds", 30)
	v.SetDefault("capture.max_concurrent_batches", 1)
	v.SetDefault("capture.domain_qps", 0)
	v.SetDefault("capture.domain_burst", 1)
	v.SetDefault("capture.selectors", []string{})
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.launch_timeout_seconds", 30)
	v.SetDefault("browser.extra_flags", []string{})
	v.SetDefault("storage.base_dir", "captures")
	v.SetDefault("storage.retention_hours", 0)
	v.SetDefault("storage.prune_interval_minutes", 60)
	v.SetDefault("mirror.backend", MirrorNone)
	v.SetDefault("mirror.gcs_bucket", "")
	v.SetDefault("mirror.prefix", "captures")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Capture.NavTimeoutSec <= 0 || c.Capture.RenderTimeoutSec <= 0 {
		return fmt.Errorf("capture timeouts must be > 0")
	}
	if c.Capture.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("capture.max_concurrent_batches must be > 0")
	}
	if c.Capture.DomainQPS < 0 {
		return fmt.Errorf("capture.domain_qps must be >= 0")
	}
	if c.Browser.ViewportHeight < detector.HardCap {
		return fmt.Errorf("browser.viewport_height must be >= %d", detector.HardCap)
	}
	if strings.TrimSpace(c.Storage.BaseDir) == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.RetentionHours < 0 {
		return fmt.Errorf("storage.retention_hours must be >= 0")
	}
	if c.Storage.RetentionHours > 0 && c.Storage.PruneIntervalMinutes <= 0 {
		return fmt.Errorf("storage.prune_interval_minutes must be > 0 when retention is enabled")
	}
	switch c.Mirror.Backend {
	case MirrorNone, MirrorMemory, "":
	case MirrorGCS:
		if c.Mirror.GCSBucket == "" {
			return fmt.Errorf("mirror.gcs_bucket must be set for the gcs mirror")
		}
	default:
		return fmt.Errorf("unknown mirror.backend %q", c.Mirror.Backend)
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// NavigationTimeout is the per-item navigation budget.
func (c Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Capture.NavTimeoutSec) * time.Second
}

// RenderTimeout is the per-item capture and compose budget.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Capture.RenderTimeoutSec) * time.Second
}

// RequestTimeout bounds non-capture HTTP requests.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// Retention is how long session directories are kept; zero keeps them forever.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionHours) * time.Hour
}

// PruneInterval is how often the retention janitor runs.
func (c Config) PruneInterval() time.Duration {
	return time.Duration(c.Storage.PruneIntervalMinutes) * time.Minute
}
