// Package config provides configuration loading for reflink.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/reflink/core/citation"
	"github.com/FocuswithJustin/reflink/internal/logging"
)

// Config represents the complete reflink configuration.
type Config struct {
	Link     LinkConfig     `yaml:"link"`
	Document DocumentConfig `yaml:"document"`
	Index    IndexConfig    `yaml:"index"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Watch    WatchConfig    `yaml:"watch"`
}

// LinkConfig configures link destinations.
type LinkConfig struct {
	// BaseURL is the reference site (default: https://biblehub.com)
	BaseURL string `yaml:"base_url"`
	// DefaultVersion is used for chapter links without a version (default: NLT)
	DefaultVersion string `yaml:"default_version"`
}

// DocumentConfig configures document traversal.
type DocumentConfig struct {
	// Exclude lists element names to skip in addition to the built-in set
	Exclude []string `yaml:"exclude"`
}

// IndexConfig configures the citation index.
type IndexConfig struct {
	// Path is the SQLite database file (empty = no index)
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty = allow all
	RateLimit      int      `yaml:"rate_limit"`      // requests per minute per client, 0 = off
	RateBurst      int      `yaml:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long a file must stay quiet before it is reprocessed
	Debounce time.Duration `yaml:"debounce"`
	// Extensions limits watched files (empty = every supported format)
	Extensions []string `yaml:"extensions"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Link: LinkConfig{
			BaseURL:        citation.DefaultBaseURL,
			DefaultVersion: string(citation.NLT),
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce:   300 * time.Millisecond,
			Extensions: []string{".html", ".htm", ".xhtml", ".xml", ".md", ".markdown", ".txt"},
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Link.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("link.base_url must be an absolute http(s) URL, got %q", c.Link.BaseURL)
	}
	if _, err := citation.ParseVersion(c.Link.DefaultVersion); err != nil {
		return fmt.Errorf("link.default_version: %w", err)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// Links returns the link builder described by the configuration. Call
// Validate first.
func (c *Config) Links() citation.LinkBuilder {
	v, err := citation.ParseVersion(c.Link.DefaultVersion)
	if err != nil {
		v = citation.NLT
	}
	return citation.LinkBuilder{BaseURL: c.Link.BaseURL, DefaultVersion: v}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Link.BaseURL != "" {
		c.Link.BaseURL = other.Link.BaseURL
	}
	if other.Link.DefaultVersion != "" {
		c.Link.DefaultVersion = other.Link.DefaultVersion
	}

	if len(other.Document.Exclude) > 0 {
		c.Document.Exclude = other.Document.Exclude
	}

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}

	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if len(other.Server.AllowedOrigins) > 0 {
		c.Server.AllowedOrigins = other.Server.AllowedOrigins
	}
	if other.Server.RateLimit != 0 {
		c.Server.RateLimit = other.Server.RateLimit
	}
	if other.Server.RateBurst != 0 {
		c.Server.RateBurst = other.Server.RateBurst
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}

	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if len(other.Watch.Extensions) > 0 {
		c.Watch.Extensions = other.Watch.Extensions
	}
}
