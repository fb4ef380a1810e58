package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"

	"github.com/filemirrorsync/filemirrorsync/internal/client/sdk"
	"github.com/filemirrorsync/filemirrorsync/internal/statestore"
	"github.com/filemirrorsync/filemirrorsync/internal/syncrunner"
)

// Client owns one SyncRunner and the flock guarding its state file from a
// second concurrently-running instance, grounded on the teacher's
// Client-wraps-SyftSDK-plus-SyncManager shape (internal/client/client.go).
type Client struct {
	config *Config
	runner *syncrunner.Runner
	lock   *flock.Flock
}

// New constructs a Client from config, wiring a syncrunner.Runner on top
// of an internal/client/sdk.Client.
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sdkClient := sdk.New(config.ServerBaseUrl, config.ApiKey)
	state := statestore.New(config.StateFile)

	runner := syncrunner.New(syncrunner.Config{
		DatasetID:          config.DatasetID,
		ClientID:           config.ClientID,
		RootPath:           config.RootPath,
		ChunkSize:          config.ChunkSize,
		MaxParallelUploads: config.MaxParallelUploads,
		EnableDelete:       config.EnableDelete,
	}, sdkClient, state)

	return &Client{
		config: config,
		runner: runner,
		lock:   flock.New(config.LockPath()),
	}, nil
}

// Start runs sync rounds every config.Interval until ctx is cancelled.
// A second instance pointed at the same state file fails fast instead of
// racing the first one's chunk uploads, per spec.md §8's concurrency
// discipline.
func (c *Client) Start(ctx context.Context) error {
	locked, err := c.lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("client: another instance holds the lock at %s", c.config.LockPath())
	}
	defer c.lock.Unlock()

	slog.Info("filemirrorsync client start",
		"dataset", c.config.DatasetID,
		"client", c.config.ClientID,
		"server", c.config.ServerBaseUrl,
		"root", c.config.RootPath,
		"interval", c.config.Interval)
	defer slog.Info("filemirrorsync client stop")

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	if err := c.runRound(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.runRound(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("sync round failed", "error", err)
			}
		}
	}
}

// RunOnce executes a single sync round and returns, for one-shot CLI
// invocations that don't want the ticker loop.
func (c *Client) RunOnce(ctx context.Context) error {
	locked, err := c.lock.TryLockContext(ctx, 200*time.Millisecond)
	if err != nil || !locked {
		return fmt.Errorf("client: another instance holds the lock at %s", c.config.LockPath())
	}
	defer c.lock.Unlock()

	return c.runRound(ctx)
}

func (c *Client) runRound(ctx context.Context) error {
	start := time.Now()
	if err := c.runner.Run(ctx); err != nil {
		return fmt.Errorf("client: sync round: %w", err)
	}
	slog.Info("sync round complete", "took", time.Since(start))
	return nil
}
