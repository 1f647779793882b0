package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field constraints that viper defaults cannot express.
// Returns an error describing the first validation failure, or nil if valid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.History.Backend) {
	case "sqlite", "postgres", "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("history backend s3: storage.bucket is required")
		}
	default:
		return fmt.Errorf("history: unknown backend %q", c.History.Backend)
	}

	if c.History.Key == "" {
		return fmt.Errorf("history: key is required")
	}
	if c.History.MaxItems <= 0 {
		return fmt.Errorf("history: max_items must be positive, got %d", c.History.MaxItems)
	}

	if c.RemoteLog.Enabled && c.RemoteLog.BaseURL == "" {
		return fmt.Errorf("remote_log: base_url is required when enabled")
	}
	return nil
}
