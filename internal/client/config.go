// Package client wires a SyncRunner to a server over HTTP and owns the
// CLI-recognized configuration of spec.md §6.
package client

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filemirrorsync/filemirrorsync/internal/utils"
)

var (
	home, _          = os.UserHomeDir()
	DefaultDataDir   = filepath.Join(home, ".filemirrorsync")
	DefaultStateFile = filepath.Join(DefaultDataDir, "state.json")
)

// Config is the client's recognized configuration, per spec.md §6.
type Config struct {
	DatasetID          string `mapstructure:"dataset_id"`
	ClientID           string `mapstructure:"client_id"`
	ApiKey             string `mapstructure:"api_key"`
	ServerBaseUrl      string `mapstructure:"server_base_url"`
	RootPath           string `mapstructure:"root_path"`
	StateFile          string `mapstructure:"state_file"`
	ChunkSize          int64  `mapstructure:"chunk_size"`
	MaxParallelUploads int    `mapstructure:"max_parallel_uploads"`
	EnableDelete       bool   `mapstructure:"enable_delete"`
	Interval           time.Duration `mapstructure:"interval"`
}

// Validate normalizes and checks the configuration, in the spirit of
// internal/client/config/config.go's Config.Validate().
func (c *Config) Validate() error {
	if c.DatasetID == "" {
		return fmt.Errorf("config: `dataset_id` is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("config: `client_id` is required")
	}
	if c.ApiKey == "" {
		return fmt.Errorf("config: `api_key` is required")
	}
	if c.ServerBaseUrl == "" {
		return fmt.Errorf("config: `server_base_url` is required")
	}
	u, err := url.Parse(c.ServerBaseUrl)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid `server_base_url` %q", c.ServerBaseUrl)
	}
	if c.RootPath == "" {
		return fmt.Errorf("config: `root_path` is required")
	}
	root, err := utils.ResolvePath(c.RootPath)
	if err != nil {
		return fmt.Errorf("config: resolve `root_path`: %w", err)
	}
	c.RootPath = root

	if c.StateFile == "" {
		c.StateFile = DefaultStateFile
	}
	stateFile, err := utils.ResolvePath(c.StateFile)
	if err != nil {
		return fmt.Errorf("config: resolve `state_file`: %w", err)
	}
	c.StateFile = stateFile

	if c.ChunkSize <= 0 {
		c.ChunkSize = 8 * 1024 * 1024
	}
	if c.MaxParallelUploads <= 0 {
		c.MaxParallelUploads = 2
	}
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}

	c.ClientID = strings.TrimSpace(c.ClientID)
	return nil
}

// LockPath returns the path of the flock used to keep a second instance
// from racing this client's state file and root path, per spec.md §8's
// concurrency discipline on the client side.
func (c *Config) LockPath() string {
	return c.StateFile + ".lock"
}
