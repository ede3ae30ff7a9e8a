package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "mock", cfg.Provider.Name)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Addr, cfg.Server.Addr)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
ops:
  dedup_ttl: "120s"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "120s", cfg.Ops.DedupTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, "600s", cfg.Ops.NotifyCooldown)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: "mock"
cache:
  enabled: true
`), 0o644))

	t.Setenv("DECISIONDOC_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DECISIONDOC_CACHE_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "test-key", cfg.Provider.GeminiAPIKey)
	assert.False(t, cfg.Cache.Enabled)
}

func TestProdRequiresKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Env = "prod"
	assert.Error(t, cfg.Validate())

	cfg.Server.APIKey = "api-key"
	assert.Error(t, cfg.Validate())

	cfg.Server.OpsKey = "ops-key"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Env = "staging"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Provider.Name = "unknown"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ops.DedupTTL = "five minutes"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Ops.BucketSeconds = -1
	assert.Error(t, cfg.Validate())
}

func TestDurationGettersFallBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ops.DedupTTL = ""
	cfg.Ops.NotifyCooldown = "garbage"
	assert.Equal(t, DefaultConfig().DedupTTL(), cfg.DedupTTL())
	assert.Equal(t, DefaultConfig().NotifyCooldown(), cfg.NotifyCooldown())
}
