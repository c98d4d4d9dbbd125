package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
item: "100012043978"
buy_time: "09:59:59.500"
schedule:
  poll_interval: 50ms
  spin: 20ms
attempt:
  max_attempts: 10
  settle: 5s
clock:
  source: ntp
session:
  store: sqlite
  key: jd-main
browser:
  agent: http
  headless: true
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "missing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "jd", cfg.Site.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Schedule.PollInterval)
	assert.Equal(t, 30, cfg.Attempt.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Attempt.Settle)
	assert.Equal(t, 100*time.Millisecond, cfg.Attempt.JitterUnit)
	assert.Equal(t, 5*time.Second, cfg.Login.Interval)
	assert.Equal(t, 300*time.Second, cfg.Login.Timeout)
	assert.Equal(t, "serverTime", cfg.Clock.Field)
	assert.Equal(t, "jd", cfg.SessionKey())
}

func TestLoad_File(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "flashbuy.yaml", []byte(sampleYAML), 0644))

	cfg, err := Load(fs, "flashbuy.yaml")
	require.NoError(t, err)

	assert.Equal(t, "100012043978", cfg.Item)
	assert.Equal(t, "09:59:59.500", cfg.BuyTime)
	assert.Equal(t, 50*time.Millisecond, cfg.Schedule.PollInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Schedule.Spin)
	assert.Equal(t, 10, cfg.Attempt.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Attempt.Settle)
	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Attempt.ConfirmWait)
	assert.Equal(t, "#btn-reservation", cfg.Attempt.TriggerSelector)
	assert.Equal(t, "ntp", cfg.Clock.Source)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, "jd-main", cfg.SessionKey())
	assert.Equal(t, "http", cfg.Browser.Agent)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "https://item.jd.com/100012043978.html", cfg.ItemURL())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bad.yaml", []byte("schedule: [1, 2"), 0644))

	_, err := Load(fs, "bad.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLASHBUY_ITEM", "42")
	t.Setenv("FLASHBUY_POLL_INTERVAL", "10ms")
	t.Setenv("FLASHBUY_SLEEP_INTERVAL", "1s")
	t.Setenv("FLASHBUY_HEADLESS", "true")
	t.Setenv("FLASHBUY_SESSION_KEY", "env-key")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "flashbuy.yaml", []byte(sampleYAML), 0644))

	cfg, err := Load(fs, "flashbuy.yaml")
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.Item)
	assert.Equal(t, 10*time.Millisecond, cfg.Schedule.PollInterval)
	assert.Equal(t, time.Second, cfg.Attempt.JitterUnit)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "env-key", cfg.SessionKey())
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("FLASHBUY_MAX_ATTEMPTS", "many")
	_, err := Load(afero.NewMemMapFs(), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "item id is required")
	assert.Contains(t, err.Error(), "buy_time is required")

	cfg.Item = "1"
	cfg.BuyTime = "10:00:00.000"
	cfg.Browser.Agent = "firefox"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firefox")
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FLASHBUY_TEST_DOTENV=loaded\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("FLASHBUY_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("FLASHBUY_TEST_DOTENV"))
}
