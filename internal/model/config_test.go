package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
accounts:
  - id: alice
    email: alice@example.com
    secret: hunter2
pool:
  max_connections: 3
queue:
  max_per_window: 7
cross_send:
  strategy: batched
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "alice", cfg.Accounts[0].ID)
	assert.Equal(t, 3, cfg.Pool.MaxConnections)
	assert.Equal(t, 7, cfg.Queue.MaxPerWindow)
	assert.Equal(t, StrategyBatched, cfg.CrossSend.Strategy)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.Pool.IdleTimeout)
	assert.Equal(t, time.Hour, cfg.Queue.WindowDuration)
	assert.NotEmpty(t, cfg.Queue.RetryDelays)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Accounts = []AccountConfig{{ID: "bob", Email: "bob@example.com", Secret: "pw"}}
	cfg.Queue.MaxPerWindow = 12
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Accounts, loaded.Accounts)
	assert.Equal(t, 12, loaded.Queue.MaxPerWindow)
}
