package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 2342, cfg.Port)
	require.Equal(t, "development", cfg.Env)
	require.Empty(t, cfg.RedisURL, "no redis means in-memory transport")
	require.Equal(t, 30*time.Second, cfg.Presence.HeartbeatInterval())
	require.Equal(t, 60*time.Second, cfg.Presence.OfflineTimeout())
	require.Equal(t, 100*time.Millisecond, cfg.Presence.CursorInterval())
	require.Equal(t, 2*time.Second, cfg.Presence.ActivityQuietWindow())
	require.Equal(t, 3*time.Second, cfg.Presence.TypingTimeout())
	require.True(t, cfg.IsDev())
}

func TestLoadMissingExplicitPathIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
port: 8080
env: production
jwt_secret: super-secret
allowed_origins:
  - "*.drawspace.app"
  - "localhost:*"
redis:
  host: redis.internal
  port: 6380
  password: hunter2
  db: 3
  tls: true
presence:
  heartbeat_interval_ms: 10000
  offline_timeout_ms: 20000
  cursor_interval_ms: 50
  activity_quiet_window_ms: 1000
  typing_timeout_ms: 1500
  sweep_interval_ms: 5000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.False(t, cfg.IsDev())
	require.Equal(t, "super-secret", cfg.JWTSecret)
	require.Equal(t, []string{"*.drawspace.app", "localhost:*"}, cfg.AllowedOrigins)
	require.Equal(t, "rediss://:hunter2@redis.internal:6380/3", cfg.RedisURL)
	require.Equal(t, 10*time.Second, cfg.Presence.HeartbeatInterval())
	require.Equal(t, 20*time.Second, cfg.Presence.OfflineTimeout())
	require.Equal(t, 50*time.Millisecond, cfg.Presence.CursorInterval())
	require.Equal(t, time.Second, cfg.Presence.ActivityQuietWindow())
	require.Equal(t, 1500*time.Millisecond, cfg.Presence.TypingTimeout())
	require.Equal(t, 5*time.Second, cfg.Presence.SweepInterval())
}

func TestLoadRedisURLShorthand(t *testing.T) {
	path := writeConfig(t, "redis_url: localhost:6379\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "prot: 8080\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsBadPort(t *testing.T) {
	path := writeConfig(t, "port: 99999\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOfflineShorterThanHeartbeat(t *testing.T) {
	path := writeConfig(t, `
presence:
  heartbeat_interval_ms: 30000
  offline_timeout_ms: 10000
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestRedisURLValue(t *testing.T) {
	require.Equal(t, "redis://localhost:6379/0", RedisRuntimeConfig{}.URLValue())
	require.Equal(t, "redis://user:pw@host:7000/2", RedisRuntimeConfig{
		Host: "host", Port: 7000, Username: "user", Password: "pw", DB: 2,
	}.URLValue())
	require.Equal(t, "rediss://example.com:6379/0", RedisRuntimeConfig{
		Host: "example.com", TLS: true,
	}.URLValue())
	require.Equal(t, "redis://already/there", RedisRuntimeConfig{URL: "redis://already/there"}.URLValue())
}
