package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		DatasetID:     "ds1",
		ClientID:      "c1",
		ApiKey:        "secret",
		ServerBaseUrl: "https://sync.example.com",
		RootPath:      tmp,
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.RootPath))
	assert.Equal(t, int64(8*1024*1024), cfg.ChunkSize)
	assert.Equal(t, 2, cfg.MaxParallelUploads)
	assert.NotZero(t, cfg.Interval)
	assert.NotEmpty(t, cfg.StateFile)
}

func TestConfig_Validate_PreservesExplicitValues(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		DatasetID:          "ds1",
		ClientID:           "c1",
		ApiKey:             "secret",
		ServerBaseUrl:      "https://sync.example.com",
		RootPath:           tmp,
		ChunkSize:          4096,
		MaxParallelUploads: 5,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(4096), cfg.ChunkSize)
	assert.Equal(t, 5, cfg.MaxParallelUploads)
}

func TestConfig_Validate_ErrorsOnMissingFields(t *testing.T) {
	tmp := t.TempDir()

	t.Run("missing dataset id", func(t *testing.T) {
		cfg := &Config{ClientID: "c1", ApiKey: "k", ServerBaseUrl: "https://x", RootPath: tmp}
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := &Config{DatasetID: "ds1", ClientID: "c1", ServerBaseUrl: "https://x", RootPath: tmp}
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad server url", func(t *testing.T) {
		cfg := &Config{DatasetID: "ds1", ClientID: "c1", ApiKey: "k", ServerBaseUrl: "not-a-url", RootPath: tmp}
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "server_base_url")
	})

	t.Run("missing root path", func(t *testing.T) {
		cfg := &Config{DatasetID: "ds1", ClientID: "c1", ApiKey: "k", ServerBaseUrl: "https://x"}
		assert.Error(t, cfg.Validate())
	})
}
