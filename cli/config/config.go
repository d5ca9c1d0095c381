package config

import (
	"fmt"
	"time"
)

// Config represents a seam.yaml configuration file.
// All values are optional and act as defaults for seam merge flags.
// CLI flags always override config values.
type Config struct {
	// Mode is "file" or "directory".
	Mode      string       `yaml:"mode"`
	Extension string       `yaml:"extension"`
	Workers   int          `yaml:"workers"`
	Strict    bool         `yaml:"strict"`
	NoSync    bool         `yaml:"no_sync"`
	Digest    bool         `yaml:"digest"`
	Format    string       `yaml:"format"`
	Log       LogConfig    `yaml:"log"`
	Notify    NotifyConfig `yaml:"notify"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// NotifyConfig holds completion notification defaults.
type NotifyConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", "file", "directory":
	default:
		return fmt.Errorf("mode must be file or directory, got %q", c.Mode)
	}
	switch c.Notify.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("notify.type must be webhook or redis, got %q", c.Notify.Type)
	}
	if c.Notify.Type != "" && c.Notify.URL == "" {
		return fmt.Errorf("notify.url is required for notify.type %q", c.Notify.Type)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Notify.Retries != nil && *c.Notify.Retries < 0 {
		return fmt.Errorf("notify.retries must be >= 0, got %d", *c.Notify.Retries)
	}
	return nil
}
