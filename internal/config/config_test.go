package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lutongjia9090/tinykv/internal/logging"
	"github.com/lutongjia9090/tinykv/internal/storage"
)

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tinykv.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
ip = "127.0.0.1"
port = 7000
storage_type = "file"
storage_path = "/tmp/tinykv.db"
cache_capacity = 256
rpc_workers = 8
shutdown_timeout = "10s"
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.IP)
	require.Equal(t, 7000, cfg.Port)
	require.Equal(t, "file", cfg.StorageType)
	require.Equal(t, "/tmp/tinykv.db", cfg.StoragePath)
	require.Equal(t, 256, cfg.CacheCapacity)
	require.Equal(t, 8, cfg.RPCWorkers)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeoutDuration())
	require.Equal(t, logging.DEBUG, cfg.Level())
}

func TestLoadFillsMissingKeysFromDefaults(t *testing.T) {
	path := writeTOML(t, `port = 1234`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 1234, cfg.Port)
	require.Equal(t, "0.0.0.0", cfg.IP)
	require.Equal(t, string(storage.Memory), cfg.StorageType)
	require.Equal(t, 1000, cfg.CacheCapacity)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeoutDuration())
	require.Equal(t, logging.INFO, cfg.Level())
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.Error(t, err)
}

func TestStorageOptionsTranslation(t *testing.T) {
	cfg := Config{StorageType: "memory_lru", StoragePath: "unused", CacheCapacity: 42}
	opts := cfg.StorageOptions()
	require.Equal(t, storage.MemoryLRU, opts.Type)
	require.Equal(t, 42, opts.CacheCapacity)
}

func TestInvalidShutdownTimeoutFallsBackToDefault(t *testing.T) {
	cfg := Config{ShutdownTimeout: "not-a-duration"}
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeoutDuration())
}

func TestInvalidLogLevelFallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "not-a-level"}
	require.Equal(t, logging.INFO, cfg.Level())
}
