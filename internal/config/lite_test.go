package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("TRIALMATCH_DATA_DIR", "/tmp/test-trialmatch")
	os.Setenv("TRIALMATCH_CACHE_MAX_ITEMS", "500")
	os.Setenv("TRIALMATCH_CACHE_TTL", "12h")
	os.Setenv("TRIALMATCH_TRANSPORT", "http")
	os.Setenv("TRIALMATCH_HTTP_PORT", "9090")
	os.Setenv("TRIALMATCH_LOG_LEVEL", "debug")
	os.Setenv("TRIALMATCH_EXTRACTION_URL", "https://extract.example.com")
	os.Setenv("TRIALMATCH_FHIR_URL", "https://fhir.example.com/fhir")
	os.Setenv("TRIALMATCH_FHIR_API_KEY", "test-key")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-trialmatch", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "https://extract.example.com", cfg.ExtractionURL)
	assert.Equal(t, "https://fhir.example.com/fhir", cfg.FHIRBaseURL)
	assert.Equal(t, "test-key", cfg.FHIRAPIKey)
}

func TestLiteConfig_TrialDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.trial-eligibility"}

	path := cfg.TrialDBPath()

	assert.Equal(t, "/home/user/.trial-eligibility/trials.db", path)
}

func TestLiteConfig_ExportDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.trial-eligibility"}

	path := cfg.ExportDir()

	assert.Equal(t, "/home/user/.trial-eligibility/exports", path)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "trialmatch")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"TRIALMATCH_DATA_DIR",
		"TRIALMATCH_CACHE_MAX_ITEMS",
		"TRIALMATCH_CACHE_TTL",
		"TRIALMATCH_TRANSPORT",
		"TRIALMATCH_HTTP_PORT",
		"TRIALMATCH_LOG_LEVEL",
		"TRIALMATCH_LOG_FORMAT",
		"TRIALMATCH_EXTRACTION_URL",
		"TRIALMATCH_EXTRACTION_API_KEY",
		"TRIALMATCH_FHIR_URL",
		"TRIALMATCH_FHIR_API_KEY",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
