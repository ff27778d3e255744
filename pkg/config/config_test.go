package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "NanoHR", cfg.Device.Name)
	assert.Equal(t, Duration(time.Second), cfg.Device.StepPollInterval)
	assert.Equal(t, "default", cfg.User.ID)
	assert.Equal(t, ":8323", cfg.API.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Store.Endpoint, "default store is in-memory")

	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	content := `
device:
  name: NanoHR
  addr: "c0:ff:ee:00:00:01"
  step_poll_interval: 2s
user:
  id: runner-7
  weight_kg: 71.5
api:
  listen: ":9000"
store:
  endpoint: "http://localhost:8080"
log_level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "c0:ff:ee:00:00:01", cfg.Device.Addr)
	assert.Equal(t, Duration(2*time.Second), cfg.Device.StepPollInterval)
	assert.Equal(t, "runner-7", cfg.User.ID)
	assert.Equal(t, 71.5, cfg.User.WeightKg)
	assert.Equal(t, ":9000", cfg.API.Listen)
	assert.Equal(t, "http://localhost:8080", cfg.Store.Endpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	content := `
user:
  id: runner-7
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "NanoHR", cfg.Device.Name)
	assert.Equal(t, Duration(time.Second), cfg.Device.StepPollInterval)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	var tests = []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"no device selector", func(c *Config) { c.Device.Name, c.Device.Addr = "", "" }, true},
		{"addr only", func(c *Config) { c.Device.Name, c.Device.Addr = "", "aa:bb:cc:dd:ee:ff" }, false},
		{"zero poll interval", func(c *Config) { c.Device.StepPollInterval = 0 }, true},
		{"empty user id", func(c *Config) { c.User.ID = "" }, true},
		{"negative weight", func(c *Config) { c.User.WeightKg = -1 }, true},
		{"empty listen address", func(c *Config) { c.API.Listen = "" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
