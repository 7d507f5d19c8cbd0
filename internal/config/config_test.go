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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "procuredb", cfg.App.Name)
	assert.Equal(t, "procurement", cfg.Database.Database)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Empty(t, cfg.Storage.Bucket)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("PROCUREDB_DATABASE_URL", "postgres://u:p@db:5432/procurement")
	t.Setenv("PROCUREDB_HTTP_PORT", "9000")
	t.Setenv("PROCUREDB_AUTH_TOKEN_TTL", "2h")
	t.Setenv("PROCUREDB_STORAGE_USE_PATH_STYLE", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/procurement", cfg.Database.Runtime().URL)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Storage.UsePathStyle)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "procuredb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\nmail:\n  host: smtp.example.com\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)
	assert.Equal(t, 587, cfg.Mail.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProductionNeedsSecret(t *testing.T) {
	t.Setenv("PROCUREDB_APP_ENV", "production")
	_, err := Load("")
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("PROCUREDB_AUTH_JWT_SECRET", "s3cret")
	_, err = Load("")
	assert.NoError(t, err)
}
