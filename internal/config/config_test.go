package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
supervisor:
  max_restarts: 5
watchdog:
  unhealthy_threshold: 4
  recovery_threshold: 2
relay:
  local_host: 127.0.0.1
rtmp_relay_port: 1935
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	m := NewManager()
	require.NoError(t, m.Load(path))

	cfg := m.Current()
	assert.Equal(t, 5, cfg.Supervisor.MaxRestarts)
	assert.Equal(t, 4, cfg.Watchdog.UnhealthyThreshold)
	// Fields absent from the YAML fall back to setDefaults.
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 2*time.Second, cfg.PTZ.SettleTime)
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	path := writeTempConfig(t, `
watchdog:
  unhealthy_threshold: -1
`)
	m := NewManager()
	err := m.Load(path)
	assert.Error(t, err)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("VISTTER_SUPERVISOR_MAX_RESTARTS", "99")

	m := NewManager()
	require.NoError(t, m.Load(path))

	assert.Equal(t, 99, m.Current().Supervisor.MaxRestarts)
}
