package settings_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stagecraft/internal/settings"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestNew_Defaults(t *testing.T) {
	s := settings.New()
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, "agents", s.AgentsDir)
	assert.Equal(t, 5*time.Minute, s.ConfirmTimeout.Duration)
	assert.Equal(t, ":8080", s.HTTP.Addr)
	assert.Empty(t, s.Redis.Addr)
	require.NoError(t, s.Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagecraft.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
workers = 8
continue_on_error = true
confirm_timeout = "30s"

[redis]
addr = "localhost:6379"
ttl = "24h"

[nats]
url = "nats://localhost:4222"
`), 0644))

	s := settings.New()
	require.NoError(t, s.LoadFile(path))
	assert.Equal(t, 8, s.Workers)
	assert.True(t, s.ContinueOnError)
	assert.Equal(t, 30*time.Second, s.ConfirmTimeout.Duration)
	assert.Equal(t, "localhost:6379", s.Redis.Addr)
	assert.Equal(t, 24*time.Hour, s.Redis.TTL.Duration)
	assert.Equal(t, "stagecraft:", s.Redis.Prefix, "unset keys keep their default")
	assert.Equal(t, "nats://localhost:4222", s.NATS.URL)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("wokers = 2\n"), 0644))
	assert.ErrorContains(t, settings.New().LoadFile(bad), "unknown setting")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := settings.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Workers)
}

func TestApplyEnv(t *testing.T) {
	s := settings.New()
	require.NoError(t, s.ApplyEnv(env(map[string]string{
		"STAGECRAFT_WORKERS":           "2",
		"STAGECRAFT_CONTINUE_ON_ERROR": "true",
		"STAGECRAFT_REDIS_ADDR":        "redis:6379",
		"STAGECRAFT_CONFIRM_TIMEOUT":   "1m",
		"STAGECRAFT_LOG_FORMAT":        "json",
	})))
	assert.Equal(t, 2, s.Workers)
	assert.True(t, s.ContinueOnError)
	assert.Equal(t, "redis:6379", s.Redis.Addr)
	assert.Equal(t, time.Minute, s.ConfirmTimeout.Duration)
	assert.Equal(t, "json", s.LogFormat)

	assert.Error(t, settings.New().ApplyEnv(env(map[string]string{"STAGECRAFT_WORKERS": "many"})))
	assert.Error(t, settings.New().ApplyEnv(env(map[string]string{"STAGECRAFT_WORKERS": "0"})))
	assert.Error(t, settings.New().ApplyEnv(env(map[string]string{"STAGECRAFT_INLINE_SHELL": "maybe"})))
}

func TestLoadFile_Security(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stagecraft.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[security]
mask_patterns = ["(?i)password", "token"]
`), 0644))

	s := settings.New()
	require.NoError(t, s.LoadFile(path))
	assert.Equal(t, []string{"(?i)password", "token"}, s.Security.MaskPatterns)

	require.NoError(t, s.ApplyEnv(env(map[string]string{"STAGECRAFT_ENCRYPTION_KEY": "c2VjcmV0"})))
	assert.Equal(t, "c2VjcmV0", s.Security.EncryptionKey)
}
