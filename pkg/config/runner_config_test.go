package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "runner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadRunnerConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
pass_interval: 10s
intake:
  enabled: true
  queue: "orders:events"
  connection:
    addr: "redis:6379"
`)

	config, err := LoadRunnerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, config.PassInterval)
	assert.True(t, config.Intake.Enabled)
	assert.Equal(t, "orders:events", config.Intake.Queue)
	assert.Equal(t, "redis:6379", config.Intake.Connection["addr"])
}

func TestLoadRunnerConfigAppliesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `intake: {enabled: false}`)

	config, err := LoadRunnerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, config.PassInterval)
	assert.Equal(t, "relay:events", config.Intake.Queue)
}

func TestLoadRunnerConfigErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadRunnerConfig("/nonexistent/runner.yaml")
	require.Error(t, err)

	path := writeConfig(t, "pass_interval: [not, a, duration]")
	_, err = LoadRunnerConfig(path)
	require.Error(t, err)
}

func TestLoadRunnerConfigOrDefault(t *testing.T) {
	t.Parallel()

	config := LoadRunnerConfigOrDefault("/nonexistent/runner.yaml")
	assert.Equal(t, 30*time.Second, config.PassInterval)
	assert.Equal(t, "relay:events", config.Intake.Queue)
	assert.False(t, config.Intake.Enabled)
}

func TestValidateRunnerConfig(t *testing.T) {
	t.Parallel()

	valid := RunnerConfig{PassInterval: time.Minute, Intake: IntakeConfig{Enabled: true, Queue: "relay:events"}}
	require.NoError(t, ValidateRunnerConfig(valid))

	tooFast := RunnerConfig{PassInterval: 100 * time.Millisecond}
	require.Error(t, ValidateRunnerConfig(tooFast))

	noQueue := RunnerConfig{PassInterval: time.Minute, Intake: IntakeConfig{Enabled: true}}
	require.Error(t, ValidateRunnerConfig(noQueue))
}
