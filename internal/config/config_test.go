package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LATEXMT_CONFIG_PATH", "LATEXMT_WORK_DIR", "LATEXMT_LOG_LEVEL", "LATEXMT_LOG_FORMAT",
		"LATEXMT_ENABLE_JOBS", "LATEXMT_WORKERS", "LATEXMT_JANITOR_CRON", "LATEXMT_HTTP_ADDR",
		"LATEXMT_UI_DIR", "LATEXMT_CORS_ORIGINS", "LATEXMT_TRANSLATOR", "LATEXMT_ALIGNER",
		"LATEXMT_OPUS_MODEL", "LATEXMT_OPUS_INPUT_PREFIX", "LATEXMT_API_URL", "LATEXMT_API_KEY", "LATEXMT_TEXFMT_BIN",
		"LATEXMT_TEXFMT_CONF", "LATEXMT_DB_DRIVER", "LATEXMT_DB_DSN",
	} {
		t.Setenv(key, "")
	}
}

func TestNewFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "config.json", cfg.ConfigPath)
	assert.Equal(t, "./work", cfg.WorkDir)
	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.False(t, cfg.Jobs.Enabled)
	assert.Equal(t, 2, cfg.Jobs.Workers)
	assert.Equal(t, "@every 1h", cfg.Jobs.JanitorCron)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "identity", cfg.Translator.Backend)
	assert.Equal(t, "positional", cfg.Translator.Aligner)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, filepath.Join("./work", "latexmt.sqlite3"), cfg.DB.DSN)
}

func TestNewFromEnv_ReadsEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATEXMT_WORK_DIR", "/srv/latexmt")
	t.Setenv("LATEXMT_ENABLE_JOBS", "true")
	t.Setenv("LATEXMT_WORKERS", "4")
	t.Setenv("LATEXMT_TRANSLATOR", "api")
	t.Setenv("LATEXMT_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.True(t, cfg.Jobs.Enabled)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, "api", cfg.Translator.Backend)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "/srv/latexmt/latexmt.sqlite3", cfg.DB.DSN)
}

func TestNewFromEnv_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"LATEXMT_TRANSLATOR":   "opus",
		"LATEXMT_ALIGNER":      "fast_align",
		"LATEXMT_WORKERS":      "0",
		"LATEXMT_JANITOR_CRON": "not cron",
		"LATEXMT_DB_DRIVER":    "mysql",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := NewFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestNewFromEnv_PostgresNeedsDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATEXMT_DB_DRIVER", "postgres")

	_, err := NewFromEnv()
	require.Error(t, err)

	t.Setenv("LATEXMT_DB_DSN", "postgres://localhost/latexmt")
	cfg, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/latexmt", cfg.DB.DSN)
}

func TestNewFromEnv_ResolvesRelativeModelPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATEXMT_OPUS_MODEL", "./models/opus-de-en")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "models", "opus-de-en"), cfg.Translator.Model)

	t.Setenv("LATEXMT_OPUS_MODEL", "Helsinki-NLP/opus-mt-de-en")
	cfg, err = NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "Helsinki-NLP/opus-mt-de-en", cfg.Translator.Model)
}

func TestBackendDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LATEXMT_API_URL", "https://api.test/v1")
	t.Setenv("LATEXMT_OPUS_MODEL", "m")
	t.Setenv("LATEXMT_OPUS_INPUT_PREFIX", ">>fr<< ")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	b := cfg.BackendDefaults()
	assert.Equal(t, "identity", b.Backend)
	assert.Equal(t, "positional", b.Aligner)
	assert.Equal(t, "m", b.Model)
	assert.Equal(t, ">>fr<< ", b.InputPrefix)
	assert.Equal(t, "https://api.test/v1", b.APIURL)
	assert.Empty(t, b.Token)
}
