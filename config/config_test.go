package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 30*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 1.0, cfg.TimeScale)
	assert.Equal(t, 1, cfg.SettleTicks)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servus.yaml")
	content := []byte("default_timeout: 5s\ntime_scale: 2.5\nsettle_ticks: 3\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 2.5, cfg.TimeScale)
	assert.Equal(t, 3, cfg.SettleTicks)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval, "unset keys keep defaults")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SERVUS_DEFAULT_TIMEOUT", "2s")
	t.Setenv("SERVUS_SETTLE_TICKS", "4")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, 4, cfg.SettleTicks)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.DefaultTimeout = 0 }},
		{"negative scale", func(c *Config) { c.TimeScale = -1 }},
		{"zero settle ticks", func(c *Config) { c.SettleTicks = 0 }},
		{"zero tick interval", func(c *Config) { c.TickInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAllowsFrozenClock(t *testing.T) {
	cfg := Default()
	cfg.TimeScale = 0
	assert.NoError(t, cfg.Validate(), "scale zero freezes virtual time but is legal")
}
