package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
simulation:
  initial_balance: 500000
  min_speed: 1
  max_speed: 50
  max_lot_size: 5
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 500000.0, cfg.Simulation.InitialBalance)
	// Untouched sections keep their defaults.
	assert.Equal(t, "./fxreplay.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Alerts.MaxConsecutiveLosses)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FXREPLAY_DB", "/tmp/override.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero balance", func(c *Config) { c.Simulation.InitialBalance = 0 }},
		{"inverted speeds", func(c *Config) { c.Simulation.MaxSpeed = 0.01 }},
		{"zero loss streak", func(c *Config) { c.Alerts.MaxConsecutiveLosses = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
