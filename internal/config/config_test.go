package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "none", cfg.Notify.Gateway)
	assert.Equal(t, 3, cfg.Poll.Attempts)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.InflightWindow)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.Timeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "olive.yaml")
	body := []byte("http:\n  addr: \":9000\"\npoll:\n  attempts: 5\n  interval: 1s\nnotify:\n  gateway: http\n  http:\n    url: http://gateway.local/send\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("OLIVE_LOG_LEVEL", "debug")
	t.Setenv("OLIVE_POLL_ATTEMPTS", "7")

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 7, cfg.Poll.Attempts)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://gateway.local/send", cfg.Notify.HTTP.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := NewViper("does-not-exist.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Storage: StorageConfig{Driver: "sqlite"}, Poll: PollConfig{Attempts: 3}}
	require.NoError(t, base.Validate())

	bad := base
	bad.Storage.Driver = "mysql"
	assert.Error(t, bad.Validate())

	twilio := base
	twilio.Notify.Gateway = "twilio"
	assert.Error(t, twilio.Validate())
	twilio.Notify.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "whatsapp:+15550000000"}
	assert.NoError(t, twilio.Validate())

	unknown := base
	unknown.Notify.Gateway = "pigeon"
	assert.Error(t, unknown.Validate())
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nexport OLIVE_TEST_A=\"from-file\"\nOLIVE_TEST_B=file\n"), 0o600))
	t.Setenv("OLIVE_TEST_B", "from-env")
	os.Unsetenv("OLIVE_TEST_A")
	t.Cleanup(func() { os.Unsetenv("OLIVE_TEST_A") })

	loadDotEnv(path)

	assert.Equal(t, "from-file", os.Getenv("OLIVE_TEST_A"))
	assert.Equal(t, "from-env", os.Getenv("OLIVE_TEST_B"))
}

func TestLoadNormalizesEnumValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OLIVE_NOTIFY_GATEWAY", " Twilio ")
	t.Setenv("OLIVE_NOTIFY_TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("OLIVE_NOTIFY_TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("OLIVE_NOTIFY_TWILIO_FROM", "whatsapp:+15550001111")
	t.Setenv("OLIVE_STORAGE_DRIVER", "SQLite")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "twilio", cfg.Notify.Gateway)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}
