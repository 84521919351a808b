package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the given keys for the test and restores them afterwards.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

var allKeys = []string{
	"INCENTIVE_PORT", "INCENTIVE_DB", "INCENTIVE_LOG_MODE",
	"INCENTIVE_CORS_ORIGINS", "INCENTIVE_SHUTDOWN_TIMEOUT", "INCENTIVE_REQUEST_TIMEOUT",
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, allKeys...)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "incentives.db", cfg.DBPath)
	assert.Equal(t, "dev", cfg.LogMode)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t, allKeys...)
	t.Setenv("INCENTIVE_PORT", "9090")
	t.Setenv("INCENTIVE_DB", ":memory:")
	t.Setenv("INCENTIVE_LOG_MODE", "PROD")
	t.Setenv("INCENTIVE_CORS_ORIGINS", "https://a.example https://b.example")
	t.Setenv("INCENTIVE_REQUEST_TIMEOUT", "5s")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ":memory:", cfg.DBPath)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvFile_EnvironmentWins(t *testing.T) {
	clearEnv(t, allKeys...)
	t.Setenv("INCENTIVE_PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("INCENTIVE_PORT=6000\nINCENTIVE_DB=/tmp/from-file.db\n"), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
}

func TestLoad_MissingEnvFile_Ignored(t *testing.T) {
	clearEnv(t, allKeys...)

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))

	assert.NoError(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"port out of range", "INCENTIVE_PORT", "70000"},
		{"unknown log mode", "INCENTIVE_LOG_MODE", "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t, allKeys...)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")

			assert.Error(t, err)
		})
	}
}
