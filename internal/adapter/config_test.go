package adapter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, DefaultServiceURL, cfg.Service.URL)
	assert.Equal(t, def.Timeline, cfg.Timeline)
	assert.Equal(t, def.Coordinator, cfg.Coordinator)
	assert.Equal(t, SecretsKeyring, cfg.Secrets.Backend)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
service:
  url: https://pds.example.com
timeline:
  page_size: 30
  poll_interval: 1m
cache:
  dir: /tmp/hangar-cache
secrets:
  backend: memory
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))
	t.Setenv("HANGAR_COORDINATOR_PERMITS", "8")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.com", cfg.Service.URL)
	assert.Equal(t, 30, cfg.Timeline.PageSize)
	assert.Equal(t, time.Minute, cfg.Timeline.PollInterval)
	assert.Equal(t, "/tmp/hangar-cache", cfg.Cache.Dir)
	assert.Equal(t, SecretsMemory, cfg.Secrets.Backend)
	assert.Equal(t, 8, cfg.Coordinator.Permits)
}

func TestLoadConfigNormalizes(t *testing.T) {
	dir := t.TempDir()
	yaml := `
coordinator:
  permits: 0
timeline:
  page_size: 500
cache:
  evict_ratio: 3
secrets:
  backend: vault
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Coordinator.Permits)
	assert.Equal(t, DefaultConfig().Timeline.PageSize, cfg.Timeline.PageSize)
	assert.Equal(t, DefaultConfig().Cache.EvictRatio, cfg.Cache.EvictRatio)
	assert.Equal(t, SecretsKeyring, cfg.Secrets.Backend)
}

func TestLoadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("service: [unclosed"), 0600))
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestSaveConfigThenLoad(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Service.URL = "https://pds.example.org"
	cfg.Timeline.PageSize = 40
	cfg.Browser.Command = "firefox"
	require.NoError(t, SaveConfig(cfg, dir))

	loaded, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://pds.example.org", loaded.Service.URL)
	assert.Equal(t, 40, loaded.Timeline.PageSize)
	assert.Equal(t, "firefox", loaded.Browser.Command)
}

func TestClearCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hangar.db"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hangar.log"), []byte("log"), 0600))

	require.NoError(t, ClearCache(&CacheConfig{Dir: dir}))
	_, err := os.Stat(filepath.Join(dir, "hangar.db"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "hangar.log"))
	assert.NoError(t, err, "the log file survives")

	// Already gone
	assert.NoError(t, ClearCache(&CacheConfig{Dir: dir}))
}

func TestFlatten(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Coordinator.Permits = 6

	values := make(map[string]any)
	var keys []string
	for _, s := range Flatten(cfg) {
		values[s.Key] = s.Value
		keys = append(keys, s.Key)
	}
	assert.IsIncreasing(t, keys)
	assert.Equal(t, 6, values["coordinator.permits"])
	assert.Equal(t, DefaultServiceURL, values["service.url"])
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "logs", "h.log"), expandHome("~/logs/h.log"))
	assert.Equal(t, "/var/log/h.log", expandHome("/var/log/h.log"))
}
