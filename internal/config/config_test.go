package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		c := NewConfig()
		c.StartURL = "https://example.com/docs"
		return c
	}

	t.Run("valid config passes", func(t *testing.T) {
		t.Parallel()

		if err := valid().Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("sentinel errors", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			mutate func(*Config)
			want   error
		}{
			{"missing start URL", func(c *Config) { c.StartURL = "" }, ErrNoStartURL},
			{"non-http start URL", func(c *Config) { c.StartURL = "ftp://example.com" }, ErrInvalidStartURL},
			{"negative depth", func(c *Config) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
			{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
			{"zero download concurrency", func(c *Config) { c.DownloadConcurrency = 0 }, ErrInvalidConcurrency},
			{"negative rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidRateLimit},
			{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
			{"negative retries", func(c *Config) { c.RetryAttempts = -1 }, ErrInvalidRetry},
			{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
			{"no extensions", func(c *Config) { c.TargetExtensions = nil }, ErrNoExtensions},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				c := valid()
				tt.mutate(c)
				if err := c.Validate(); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("extensions are normalized", func(t *testing.T) {
		t.Parallel()

		c := valid()
		c.TargetExtensions = []string{"PDF", "pdf", ".Zip"}
		if err := c.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(c.TargetExtensions) != 2 {
			t.Errorf("expected deduped extensions, got %v", c.TargetExtensions)
		}
		for _, ext := range c.TargetExtensions {
			if ext[0] != '.' {
				t.Errorf("expected leading dot on %q", ext)
			}
		}
	})

	t.Run("defaults are sane", func(t *testing.T) {
		t.Parallel()

		c := NewConfig()
		if c.MaxDepth != DefaultMaxDepth {
			t.Errorf("expected default depth %d, got %d", DefaultMaxDepth, c.MaxDepth)
		}
		if !c.RespectRobots || !c.SameDomainOnly {
			t.Error("politeness defaults should be on")
		}
		if len(c.TargetExtensions) == 0 {
			t.Error("expected default extension set")
		}
	})
}

// TestSettingsFile tests YAML settings loading and overlay.
func TestSettingsFile(t *testing.T) {
	t.Parallel()

	t.Run("loads and applies", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, DefaultSettingsFile)
		content := `
output_dir: archive
rate_limit: 0.5
user_agent: "custom-bot/2.0"
request_timeout: 45s
target_extensions:
  - pdf
  - xlsx
exclude_patterns:
  - "/private/"
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		settings, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}

		c := NewConfig()
		if err := settings.Apply(c); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
		if c.OutputDir != "archive" {
			t.Errorf("expected output dir applied, got %q", c.OutputDir)
		}
		if c.RateLimit != 0.5 {
			t.Errorf("expected rate 0.5, got %v", c.RateLimit)
		}
		if c.UserAgent != "custom-bot/2.0" {
			t.Errorf("expected user agent applied, got %q", c.UserAgent)
		}
		if c.RequestTimeout.Seconds() != 45 {
			t.Errorf("expected 45s timeout, got %v", c.RequestTimeout)
		}
		if len(c.TargetExtensions) != 2 {
			t.Errorf("expected extensions replaced, got %v", c.TargetExtensions)
		}
		if len(c.ExcludePatterns) != 1 {
			t.Errorf("expected exclude patterns applied, got %v", c.ExcludePatterns)
		}
	})

	t.Run("unset fields keep defaults", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, DefaultSettingsFile)
		if err := os.WriteFile(path, []byte("output_dir: archive\n"), 0600); err != nil {
			t.Fatal(err)
		}

		settings, err := LoadSettings(path)
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		c := NewConfig()
		if err := settings.Apply(c); err != nil {
			t.Fatalf("apply failed: %v", err)
		}
		if c.RateLimit != DefaultRateLimit {
			t.Errorf("unset rate limit should keep default, got %v", c.RateLimit)
		}
		if len(c.TargetExtensions) != len(DefaultTargetExtensions) {
			t.Errorf("unset extensions should keep defaults, got %v", c.TargetExtensions)
		}
	})

	t.Run("missing file reports sentinel", func(t *testing.T) {
		t.Parallel()

		_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yml"))
		if !errors.Is(err, ErrSettingsNotFound) {
			t.Errorf("expected ErrSettingsNotFound, got %v", err)
		}
	})

	t.Run("explicit path wins in discovery", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yml")
		if err := os.WriteFile(path, []byte("output_dir: x\n"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindSettingsFile(path); got != path {
			t.Errorf("expected %q, got %q", path, got)
		}
		if got := FindSettingsFile(filepath.Join(dir, "absent.yml")); got != "" {
			t.Errorf("expected empty for missing explicit file, got %q", got)
		}
	})
}
