package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentrygate/sentrygate/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 0.9, cfg.Risk.BlockThreshold)
	assert.Equal(t, 0.7, cfg.Risk.CaptchaThreshold)
	assert.Equal(t, 0.5, cfg.Risk.RateLimitThreshold)
	assert.Equal(t, models.ModeSemiAuto, cfg.Automation.Mode)
	assert.Equal(t, 0.8, cfg.Incident.Threshold)
	assert.Equal(t, 65536, cfg.Detect.MaxInspectBytes)
}

func TestLoad_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riskd.yaml")
	content := []byte(`
automation:
  mode: strict
risk:
  block_threshold: 0.95
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.ModeStrict, cfg.Automation.Mode)
	assert.Equal(t, 0.95, cfg.Risk.BlockThreshold)
	// Untouched defaults survive
	assert.Equal(t, 0.7, cfg.Risk.CaptchaThreshold)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Automation.Mode = "yolo" }},
		{"threshold above one", func(c *Config) { c.Risk.BlockThreshold = 1.5 }},
		{"threshold below zero", func(c *Config) { c.Incident.Threshold = -0.1 }},
		{"unordered bands", func(c *Config) { c.Risk.CaptchaThreshold = 0.95 }},
		{"weights above one", func(c *Config) { c.Risk.WeightML = 0.9 }},
		{"zero duration", func(c *Config) { c.Risk.BlockMinutes = 0 }},
		{"zero window", func(c *Config) { c.Incident.CorrelationWindow = 0 }},
		{"zero inspect cap", func(c *Config) { c.Detect.MaxInspectBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStore_SetMode(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	store := NewStore(cfg)
	require.NoError(t, store.SetMode(models.ModeAuto))
	assert.Equal(t, models.ModeAuto, store.Snapshot().Automation.Mode)

	// The original snapshot held by an in-flight run is untouched.
	assert.Equal(t, models.ModeSemiAuto, cfg.Automation.Mode)

	assert.Error(t, store.SetMode("bogus"))
	assert.Equal(t, models.ModeAuto, store.Snapshot().Automation.Mode)
}

func TestStore_ReplaceRejectsInvalid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	store := NewStore(cfg)
	bad := *cfg
	bad.Risk.BlockThreshold = 2.0

	assert.Error(t, store.Replace(&bad))
	assert.Equal(t, 0.9, store.Snapshot().Risk.BlockThreshold)
}
