package config

import "fmt"

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks values a flag or the environment may have overridden.
func (c *Config) Validate() error {
	if c.GGPK == "" {
		return fmt.Errorf("ggpk path cannot be empty")
	}

	if c.BundleThreshold <= 0 {
		return fmt.Errorf("bundle_threshold must be positive, got %d", c.BundleThreshold)
	}

	if c.CacheEntries < 0 {
		return fmt.Errorf("cache_entries cannot be negative, got %d", c.CacheEntries)
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("unsupported log level '%s': supported levels are debug, info, warn, error", c.LogLevel)
	}

	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("unsupported log format '%s': supported formats are text, json", c.LogFormat)
	}

	return nil
}
