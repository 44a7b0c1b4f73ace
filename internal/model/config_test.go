package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.API.BaseURL)
	assert.Equal(t, HistoryMerge, cfg.Notifications.HistoryPolicy)
	assert.True(t, cfg.Sync.ResyncOnReconnect)
	assert.Equal(t, 64, cfg.Push.Buffer)
	assert.NotEmpty(t, cfg.Cache.Path)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
api:
  base_url: https://agri.example.com/api/
notifications:
  history_policy: replace
push:
  reconnect_min_ms: 2000
  reconnect_max_ms: 100
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("AGRIASSIST_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://agri.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, HistoryReplace, cfg.Notifications.HistoryPolicy)
	assert.Equal(t, 2000, cfg.Push.ReconnectMaxMS)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigRejectsUnknownHistoryPolicy(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("notifications:\n  history_policy: append\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_policy")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.API.BaseURL = "https://agri.example.com/api"
	cfg.Metrics.Addr = ":9102"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://agri.example.com/api", loaded.API.BaseURL)
	assert.Equal(t, ":9102", loaded.Metrics.Addr)
}
