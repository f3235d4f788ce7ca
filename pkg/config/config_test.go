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
	path := filepath.Join(t.TempDir(), "bigipctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_BIGIP_PASSWORD", "hunter2")

	path := writeConfig(t, `
device:
  address: https://lb.example.com
  username: admin
  password: ${TEST_BIGIP_PASSWORD}
  token_auth: true
import:
  poll_interval: 2s
  poll_timeout: 10m
sync:
  dir: ./policies
  force: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://lb.example.com", cfg.Device.Address)
	assert.Equal(t, "admin", cfg.Device.Username)
	assert.Equal(t, "hunter2", cfg.Device.Password, "env vars are expanded")
	assert.True(t, cfg.Device.TokenAuth)
	assert.Equal(t, 2*time.Second, cfg.Import.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Import.PollTimeout)
	assert.Equal(t, "./policies", cfg.Sync.Dir)
	assert.True(t, cfg.Sync.Force)

	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Device.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Import.UploadSettle)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "device: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, `
device:
  address: lb.example.com
guard:
  query: data.bigipctl.deny
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guard.query requires guard.policy_file")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Second, cfg.Import.PollInterval)
	assert.Equal(t, 1.0, cfg.Import.PollMultiplier)
	assert.Zero(t, cfg.Import.PollTimeout, "the device API's native behavior polls forever")
	require.NoError(t, cfg.Validate())
}
