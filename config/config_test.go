package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus-agent/prometheus/core"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 3, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, 0.8, cfg.Evolution.MinSuccessRate)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero iterations", func(c *Config) { c.Orchestrator.MaxIterations = 0 }},
		{"zero concurrency", func(c *Config) { c.Orchestrator.MaxConcurrentTasks = 0 }},
		{"zero min samples", func(c *Config) { c.Evolution.MinSamples = 0 }},
		{"success rate above 1", func(c *Config) { c.Evolution.MinSuccessRate = 1.5 }},
		{"sample rate below 0", func(c *Config) { c.Bus.TraceSampleRate = -0.1 }},
		{"retry above accept", func(c *Config) { c.Reflection.RetryScore = 0.9 }},
		{"complex below medium", func(c *Config) { c.Router.ComplexWordCount = 4 }},
		{"compact above alert", func(c *Config) { c.Store.CompactThresholdBytes = 512 << 20 }},
		{"zero beam width", func(c *Config) { c.World.BeamWidth = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, core.IsConfiguration(err))
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
orchestrator:
  max_iterations: 7
memory:
  recency_half_life: 1h
bus:
  trace_sample_rate: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden fields
	assert.Equal(t, 7, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, time.Hour, cfg.Memory.RecencyHalfLife.Std())
	assert.Equal(t, 0.5, cfg.Bus.TraceSampleRate)
	// Untouched fields keep defaults
	assert.Equal(t, 3, cfg.Orchestrator.MaxConcurrentTasks)
	assert.Equal(t, 3, cfg.Evolution.MinSamples)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	assert.True(t, core.IsConfiguration(err))
}

func TestLoadInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  max_iterations: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
