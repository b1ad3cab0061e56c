package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSetsDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 256, cfg.Limits.DefaultHeapCapMB)
	assert.Equal(t, "memory", cfg.KV.Driver)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9001")
	t.Setenv("KV_DRIVER", "redis")
	t.Setenv("KV_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.KV.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.KV.RedisURL)
}

func TestLoadReadsYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("kv:\n  driver: jsonfile\n  json_file: /tmp/kv.json\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "jsonfile", cfg.KV.Driver)
	assert.Equal(t, "/tmp/kv.json", cfg.KV.JSONFile)
}
