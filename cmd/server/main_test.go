package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadConfigDefaults(t *testing.T) {
	resetViper(t)
	t.Setenv("SYNC_ADDR", "")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxParallelUploads)
	assert.Equal(t, time.Hour, cfg.SessionGCInterval)
}

func TestLoadConfigEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("SYNC_ADDR", "127.0.0.1:9090")
	t.Setenv("SYNC_INBOUND_ROOT", "/tmp/inbound")
	t.Setenv("SYNC_TEMP_ROOT", "/tmp/temp")
	t.Setenv("SYNC_DELETE_STRATEGY", "LwwDelete")
	t.Setenv("SYNC_MAX_PARALLEL_UPLOADS", "8")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, "/tmp/inbound", cfg.InboundRoot)
	assert.Equal(t, "/tmp/temp", cfg.TempRoot)
	assert.Equal(t, "LwwDelete", cfg.DeleteStrategy)
	assert.Equal(t, 8, cfg.MaxParallelUploads)
}

func TestLoadConfigYAMLFile(t *testing.T) {
	resetViper(t)

	dummyConfig := `
addr: localhost:8080
inbound_root: /data/inbound
temp_root: /data/temp
delete_strategy: LwwDelete
max_parallel_uploads: 6
`
	dummyConfigFile := filepath.Join(os.TempDir(), "filemirrorsync-server-test.yaml")
	require.NoError(t, os.WriteFile(dummyConfigFile, []byte(dummyConfig), 0o644))
	defer os.Remove(dummyConfigFile)

	require.NoError(t, rootCmd.PersistentFlags().Set("config", dummyConfigFile))
	defer rootCmd.PersistentFlags().Set("config", "")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8080", cfg.Addr)
	assert.Equal(t, "/data/inbound", cfg.InboundRoot)
	assert.Equal(t, "/data/temp", cfg.TempRoot)
	assert.Equal(t, "LwwDelete", cfg.DeleteStrategy)
	assert.Equal(t, 6, cfg.MaxParallelUploads)
}
