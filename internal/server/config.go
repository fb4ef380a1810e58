package server

import (
	"fmt"
	"time"

	"github.com/filemirrorsync/filemirrorsync/internal/model"
)

// DefaultAddr mirrors the teacher's server.DefaultAddr convention.
const DefaultAddr = "127.0.0.1:8080"

// ApiKeysConfig is spec.md §6's "ApiKeys.DatasetKeys"/"ApiKeys.ClientKeys".
type ApiKeysConfig struct {
	DatasetKeys map[string]string `mapstructure:"dataset_keys"`
	ClientKeys  map[string]string `mapstructure:"client_keys"`
}

// Config is the server's recognized configuration, per spec.md §6.
type Config struct {
	Addr               string        `mapstructure:"addr"`
	InboundRoot        string        `mapstructure:"inbound_root"`
	TempRoot           string        `mapstructure:"temp_root"`
	DeleteStrategy     string        `mapstructure:"delete_strategy"` // "Disabled" | "LwwDelete"
	MaxParallelUploads int           `mapstructure:"max_parallel_uploads"`
	ApiKeys            ApiKeysConfig `mapstructure:"api_keys"`
	SessionGCInterval  time.Duration `mapstructure:"session_gc_interval"`
	RateLimit          string        `mapstructure:"rate_limit"` // e.g. "100-M", see ulule/limiter/v3
}

// Validate checks the recognized configuration for obvious
// misconfiguration, in the spirit of internal/server/auth/auth_config.go's
// Config.Validate().
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server `addr` is required")
	}
	if c.InboundRoot == "" {
		return fmt.Errorf("server `inbound_root` is required")
	}
	if c.TempRoot == "" {
		return fmt.Errorf("server `temp_root` is required")
	}
	if c.MaxParallelUploads < 1 {
		return fmt.Errorf("server `max_parallel_uploads` must be >= 1")
	}
	if _, err := ParseDeleteStrategy(c.DeleteStrategy); err != nil {
		return err
	}
	return nil
}

// ParseDeleteStrategy parses the `DeleteStrategy` configuration value.
func ParseDeleteStrategy(s string) (model.DeletePolicy, error) {
	switch s {
	case "", "Disabled":
		return model.DeletePolicyDisabled, nil
	case "LwwDelete":
		return model.DeletePolicyLwwDelete, nil
	default:
		return model.DeletePolicyDisabled, fmt.Errorf("server `delete_strategy` must be Disabled or LwwDelete, got %q", s)
	}
}
