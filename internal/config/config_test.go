package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.True(t, cfg.Browser.Headless)
	require.True(t, cfg.Browser.NoSandbox)
	require.Equal(t, 900, cfg.Browser.ViewportHeight)
	require.Equal(t, "captures", cfg.Storage.BaseDir)
	require.Equal(t, MirrorNone, cfg.Mirror.Backend)
	require.Equal(t, 1, cfg.Capture.MaxConcurrentBatches)
	require.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	require.Equal(t, 30*time.Second, cfg.RenderTimeout())
	require.Zero(t, cfg.Retention())
	require.Empty(t, cfg.Capture.Selectors)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 60
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: warn
capture:
  nav_timeout_seconds: 45
  render_timeout_seconds: 20
  max_concurrent_batches: 2
  domain_qps: 0.5
  selectors: [".post-title", "h1"]
browser:
  exec_path: /usr/bin/chromium
  no_sandbox: false
  viewport_height: 1024
  extra_flags: ["--lang=ko-KR"]
storage:
  base_dir: /var/lib/blogshot
  retention_hours: 72
  prune_interval_minutes: 30
mirror:
  backend: gcs
  gcs_bucket: blog-captures
  prefix: shots
pubsub:
  project_id: proj
  topic_name: captures
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, time.Minute, cfg.RequestTimeout())
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, 45*time.Second, cfg.NavigationTimeout())
	require.Equal(t, 2, cfg.Capture.MaxConcurrentBatches)
	require.InDelta(t, 0.5, cfg.Capture.DomainQPS, 1e-9)
	require.Equal(t, []string{".post-title", "h1"}, cfg.Capture.Selectors)
	require.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecPath)
	require.False(t, cfg.Browser.NoSandbox)
	require.Equal(t, []string{"--lang=ko-KR"}, cfg.Browser.ExtraFlags)
	require.Equal(t, 72*time.Hour, cfg.Retention())
	require.Equal(t, 30*time.Minute, cfg.PruneInterval())
	require.Equal(t, MirrorGCS, cfg.Mirror.Backend)
	require.Equal(t, "captures", cfg.PubSub.TopicName)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"zero nav timeout", func(c *Config) { c.Capture.NavTimeoutSec = 0 }, "capture timeouts"},
		{"zero batches", func(c *Config) { c.Capture.MaxConcurrentBatches = 0 }, "max_concurrent_batches"},
		{"negative qps", func(c *Config) { c.Capture.DomainQPS = -1 }, "domain_qps"},
		{"short viewport", func(c *Config) { c.Browser.ViewportHeight = 500 }, "viewport_height"},
		{"empty base dir", func(c *Config) { c.Storage.BaseDir = " " }, "storage.base_dir"},
		{"retention without interval", func(c *Config) {
			c.Storage.RetentionHours = 1
			c.Storage.PruneIntervalMinutes = 0
		}, "prune_interval_minutes"},
		{"gcs without bucket", func(c *Config) { c.Mirror.Backend = MirrorGCS }, "gcs_bucket"},
		{"unknown mirror", func(c *Config) { c.Mirror.Backend = "s3" }, "mirror.backend"},
		{"half pubsub", func(c *Config) { c.PubSub.ProjectID = "p" }, "pubsub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}
