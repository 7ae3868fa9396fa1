package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"PORT",
		"HYDRATION_CACHE_TTL",
		"LEXICAL_BACKEND",
		"RATE_LIMIT_PER_SECOND",
		"TENANT_CONFIG_RELOAD_INTERVAL",
		"OTEL_ENABLED",
	}
	for _, key := range envVars {
		_ = os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, "9020", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.HydrationTTL)
	assert.Equal(t, "meilisearch", cfg.LexicalBackend)
	assert.Equal(t, 20.0, cfg.RateLimitPerSecond)
	assert.Equal(t, 30*time.Second, cfg.TenantConfigReload)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HYDRATION_CACHE_TTL", "90s")
	t.Setenv("RERANKER_TIMEOUT", "750ms")
	t.Setenv("TENANT_CONFIG_RELOAD_INTERVAL", "5")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("DB_MAX_CONNS", "8")

	cfg := Load()

	assert.Equal(t, 90*time.Second, cfg.HydrationTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.RerankTimeout)
	assert.Equal(t, 5*time.Second, cfg.TenantConfigReload)
	assert.Equal(t, 2.5, cfg.RateLimitPerSecond)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, 8, cfg.DBMaxConns)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HYDRATION_CACHE_TTL", "soon")
	t.Setenv("RATE_LIMIT_BURST", "many")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.HydrationTTL)
	assert.Equal(t, 40, cfg.RateLimitBurst)
}

func TestGetSecret_FromFile(t *testing.T) {
	_ = os.Unsetenv("DB_PASSWORD")
	path := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(path, []byte("s3cret\n"), 0o600))
	t.Setenv("DB_PASSWORD_FILE", path)

	cfg := Load()
	assert.Equal(t, "s3cret", cfg.DBPassword)
}

func TestGetEnvWithAlt(t *testing.T) {
	_ = os.Unsetenv("GENERATION_URL")
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")

	cfg := Load()
	assert.Equal(t, "http://gpu-box:11434", cfg.GenerationURL)
}
