package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is the default settings file name.
const DefaultSettingsFile = ".filegrab.yml"

// ErrSettingsNotFound is returned when the settings file does not exist.
var ErrSettingsNotFound = errors.New("settings file not found")

// Settings is the YAML settings file shape. Every field is optional;
// absent fields keep the Config defaults. CLI flags override both.
type Settings struct {
	OutputDir           string   `yaml:"output_dir,omitempty"`
	LogsDir             string   `yaml:"logs_dir,omitempty"`
	StatePath           string   `yaml:"state_path,omitempty"`
	ReportPath          string   `yaml:"report_path,omitempty"`
	ManifestPath        string   `yaml:"manifest_path,omitempty"`
	LinksReportPath     string   `yaml:"links_report_path,omitempty"`
	SummaryPath         string   `yaml:"summary_path,omitempty"`
	UserAgent           string   `yaml:"user_agent,omitempty"`
	RateLimit           *float64 `yaml:"rate_limit,omitempty"`
	Concurrency         int      `yaml:"concurrency,omitempty"`
	DownloadConcurrency int      `yaml:"download_concurrency,omitempty"`
	RequestTimeout      string   `yaml:"request_timeout,omitempty"`
	RetryAttempts       *int     `yaml:"retry_attempts,omitempty"`
	RetryBackoff        *float64 `yaml:"retry_backoff,omitempty"`
	AllowedContentTypes []string `yaml:"allowed_content_types,omitempty"`
	TargetExtensions    []string `yaml:"target_extensions,omitempty"`
	IncludePatterns     []string `yaml:"include_patterns,omitempty"`
	ExcludePatterns     []string `yaml:"exclude_patterns,omitempty"`
}

// LoadSettings reads a YAML settings file. A missing file returns
// ErrSettingsNotFound; callers decide whether that matters based on
// whether the user named the file explicitly.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided settings path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSettingsFile locates the settings file:
//  1. the explicit path, when given
//  2. .filegrab.yml in the current directory
//  3. .filegrab.yml in the user's home directory
//
// Returns an empty string when nothing is found.
func FindSettingsFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultSettingsFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultSettingsFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}

// Apply overlays the settings file onto a Config. Only fields the file
// actually sets are copied.
func (s *Settings) Apply(c *Config) error {
	if s.OutputDir != "" {
		c.OutputDir = s.OutputDir
	}
	if s.LogsDir != "" {
		c.LogsDir = s.LogsDir
	}
	if s.StatePath != "" {
		c.StatePath = s.StatePath
	}
	if s.ReportPath != "" {
		c.ReportPath = s.ReportPath
	}
	if s.ManifestPath != "" {
		c.ManifestPath = s.ManifestPath
	}
	if s.LinksReportPath != "" {
		c.LinksReportPath = s.LinksReportPath
	}
	if s.SummaryPath != "" {
		c.SummaryPath = s.SummaryPath
	}
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}
	if s.RateLimit != nil {
		c.RateLimit = *s.RateLimit
	}
	if s.Concurrency > 0 {
		c.Concurrency = s.Concurrency
	}
	if s.DownloadConcurrency > 0 {
		c.DownloadConcurrency = s.DownloadConcurrency
	}
	if s.RequestTimeout != "" {
		d, err := time.ParseDuration(s.RequestTimeout)
		if err != nil {
			return err
		}
		c.RequestTimeout = d
	}
	if s.RetryAttempts != nil {
		c.RetryAttempts = *s.RetryAttempts
	}
	if s.RetryBackoff != nil {
		c.RetryBackoff = *s.RetryBackoff
	}
	if len(s.AllowedContentTypes) > 0 {
		c.AllowedContentTypes = append([]string(nil), s.AllowedContentTypes...)
	}
	if len(s.TargetExtensions) > 0 {
		c.TargetExtensions = append([]string(nil), s.TargetExtensions...)
	}
	if len(s.IncludePatterns) > 0 {
		c.IncludePatterns = append([]string(nil), s.IncludePatterns...)
	}
	if len(s.ExcludePatterns) > 0 {
		c.ExcludePatterns = append([]string(nil), s.ExcludePatterns...)
	}
	return nil
}
