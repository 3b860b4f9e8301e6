package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return "--env-file=" + filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "x")

	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "public", cfg.DBScheme)
	assert.Equal(t, BackendRedis, cfg.PresenceBackend)
	assert.Equal(t, time.Hour, cfg.PresenceTTL)
	assert.Equal(t, 24*time.Hour, cfg.AuthTokenTTL)
	assert.Equal(t, 2*time.Second, cfg.BusPublishTimeout)
	assert.EqualValues(t, 64<<10, cfg.WSMaxMessageBytes)
	assert.Empty(t, cfg.WSAllowedOrigins)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "x")
	t.Setenv("APP_PORT", "9000")
	t.Setenv("PRESENCE_BACKEND", "memory")
	t.Setenv("BUS_BACKEND", "memory")
	t.Setenv("PRESENCE_TTL", "15m")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.io, https://b.io")

	cfg, err := Load([]string{noEnvFile(t)})
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, 15*time.Minute, cfg.PresenceTTL)
	assert.Equal(t, []string{"https://a.io", "https://b.io"}, cfg.WSAllowedOrigins)
	assert.False(t, cfg.NeedsRedis())

	cfg, err = Load([]string{noEnvFile(t), "--port", "7000", "--bus-backend", "redis"})
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.AppPort)
	assert.Equal(t, BackendRedis, cfg.BusBackend)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("AUTH_JWT_SECRET=from-file\nDB_NAME=notes\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("AUTH_JWT_SECRET")
		os.Unsetenv("DB_NAME")
	})

	cfg, err := Load([]string{"--env-file", path})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AuthJWTSecret)
	assert.Equal(t, "notes", cfg.DBName)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	t.Setenv("PRESENCE_BACKEND", "etcd")

	_, err := Load([]string{noEnvFile(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")
	assert.Contains(t, err.Error(), "PRESENCE_BACKEND")
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Config{DBPassword: "pw", AuthJWTSecret: "jwt", S3SecretKey: "sk"}
	s := cfg.String()
	assert.NotContains(t, s, "pw\n")
	assert.NotContains(t, s, "jwt\n")
	assert.Contains(t, s, "DBPassword: ********")
	assert.Contains(t, s, "S3AccessKey: (empty)")
}

func TestGetDSN(t *testing.T) {
	cfg := Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5432, DBName: "d", DBScheme: "public"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable&search_path=public", cfg.GetDSN())
}
