package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LEDGERSYNC_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Sync.PageCap)
	require.Equal(t, 10000, cfg.Sync.MaxTransactions)
	require.Equal(t, 5*time.Minute, cfg.Sync.Cooldown)
	require.Equal(t, 100, cfg.Sync.ChunkSize)
	require.NotEmpty(t, cfg.Database.Path)
}

func TestLoadFromFileAndSecretEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[sync]
page_cap = 3
max_transactions = 500
cooldown = "90s"
chunk_size = 25

[provider]
base_url = "https://example.test"
client_id = "cid"
secret_env = "TEST_PROVIDER_SECRET"
`), 0o600))
	t.Setenv("LEDGERSYNC_CONFIG", path)
	t.Setenv("TEST_PROVIDER_SECRET", "sekrit")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Sync.PageCap)
	require.Equal(t, 500, cfg.Sync.MaxTransactions)
	require.Equal(t, 90*time.Second, cfg.Sync.Cooldown)
	require.Equal(t, 25, cfg.Sync.ChunkSize)
	require.Equal(t, "https://example.test", cfg.Provider.BaseURL)
	require.Equal(t, "cid", cfg.Provider.ClientID)
	require.Equal(t, "sekrit", cfg.Provider.Secret)
}

func TestValidateRejectsBadCaps(t *testing.T) {
	t.Parallel()

	good := Config{Sync: SyncConfig{PageCap: 1, MaxTransactions: 1, Cooldown: 0, ChunkSize: 1}}
	require.NoError(t, good.Validate())

	bad := good
	bad.Sync.PageCap = 0
	require.Error(t, bad.Validate())

	bad = good
	bad.Sync.MaxTransactions = -1
	require.Error(t, bad.Validate())

	bad = good
	bad.Sync.Cooldown = -time.Second
	require.Error(t, bad.Validate())

	bad = good
	bad.Sync.ChunkSize = 0
	require.Error(t, bad.Validate())
}
