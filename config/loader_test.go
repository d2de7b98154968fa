package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "coordinator@local", cfg.Agents.Coordinator)
	assert.Equal(t, time.Second, cfg.Pipeline.ReceiveTimeout)
	assert.Equal(t, 65536, cfg.Pipeline.MaxBodyBytes)
	assert.Zero(t, cfg.Pipeline.MaxIdleTicks, "idle guard disabled by default")
	assert.Equal(t, "sqlite", cfg.KB.Driver)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voyagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
pipeline:
  max_body_bytes: 1024
  max_idle_ticks: 5
agents:
  weather: weather@prod
`), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1024, cfg.Pipeline.MaxBodyBytes)
	assert.Equal(t, 5, cfg.Pipeline.MaxIdleTicks)
	assert.Equal(t, "weather@prod", cfg.Agents.Weather)
	assert.Equal(t, "presenter@local", cfg.Agents.Presenter, "unset fields keep defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/voyagent.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voyagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	t.Setenv("VOYAGENT_LOG_LEVEL", "warn")
	t.Setenv("VOYAGENT_PIPELINE_RECEIVE_TIMEOUT", "250ms")
	t.Setenv("VOYAGENT_REDIS_ADDR", "redis:6379")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.ReceiveTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("VOYAGENT_LOG_LEVEL", "loud")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestCustomValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		if c.LLM.APIKey == "" {
			return assert.AnError
		}
		return nil
	}).Load()
	assert.ErrorIs(t, err, assert.AnError)
}
