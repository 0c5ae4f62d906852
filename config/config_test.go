package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, 500, cfg.MaxAgents)
	assert.InDelta(t, 1.47, cfg.MaxSpeed, 1e-6)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nav.hjson")
	// hjson: comments and unquoted keys are fine.
	content := `
{
  # smaller crowd for tests
  maxAgents: 100
  avoidanceQuality: 1
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxAgents)
	assert.Equal(t, 1, cfg.AvoidanceQuality)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.3, cfg.AgentRadius, 1e-6)
	assert.Equal(t, 64, cfg.RandomPointAttempts)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nav.hjson")
	require.NoError(t, os.WriteFile(path, []byte(`{ maxAgents: -5 }`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.hjson"))
	assert.Error(t, err)
}
