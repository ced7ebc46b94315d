// Package postwatch implements the collection engine: it watches a feed
// page for containers matching a selector, extracts one structured record
// per container exactly once, and exports the collected records as a
// tab-separated file.
package postwatch

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level postwatch configuration.
type Config struct {
	Page     PageConfig     `yaml:"page"`
	Debounce DebounceConfig `yaml:"debounce"`
	Retry    RetryConfig    `yaml:"retry"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Export   ExportConfig   `yaml:"export"`
	Browser  BrowserConfig  `yaml:"browser"`
	Server   ServerConfig   `yaml:"server"`
	DBPath   string         `yaml:"db_path"`
	Log      LogConfig      `yaml:"log"`
}

// PageConfig defines the page to collect from.
type PageConfig struct {
	URL string `yaml:"url"`
	// Selector matches the container elements ("posts").
	Selector string `yaml:"selector"`
	// ContentSelector addresses the text body inside a container. A bare
	// token is treated as a class name.
	ContentSelector string `yaml:"content_selector"`
	// RepostMarker excludes containers carrying this selector.
	RepostMarker string `yaml:"repost_marker"`
	// Format is "plain" or "markdown".
	Format string `yaml:"format"`
	// Sanitize strips unsafe markup before extraction.
	Sanitize bool `yaml:"sanitize"`
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// RetryConfig controls the per-node retry budget for failed extractions.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// DedupConfig controls deduplication behaviour.
type DedupConfig struct {
	// ResetOnClear forgets collected logical ids when the record buffer is
	// cleared, so the same posts can be collected again.
	ResetOnClear bool `yaml:"reset_on_clear"`
}

// ExportConfig controls where export files land.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// BrowserConfig controls the Chrome connection.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Stealth          string   `yaml:"stealth"` // plain | headless | headful
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// ServerConfig controls the HTTP control surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls logging output and rotation.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
	// File enables rotating file output; empty logs to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 250 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Delay <= 0 {
		c.Retry.Delay = 500 * time.Millisecond
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "."
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8420"
	}
	if c.Page.Format == "" {
		c.Page.Format = "plain"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 14
	}
}
