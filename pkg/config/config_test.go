package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swargawasal/Final-output-03/pkg/config"
)

var envKeys = []string{
	"PROMOGUARD_COOLDOWN", "PROMOGUARD_HISTORY_LIMIT", "PROMOGUARD_SCHEDULE_DELAY",
	"PROMOGUARD_MIN_WORDS", "PROMOGUARD_MAX_WORDS", "PROMOGUARD_STATE_FILE",
	"PROMOGUARD_SAFE_RESULT_FILE", "PROMOGUARD_STATE_BACKEND", "REDIS_ADDR",
	"REDIS_PASSWORD", "REDIS_DB", "PROMOGUARD_LEDGER_DSN", "GEMINI_API_KEY",
	"GEMINI_MODEL", "PROMOGUARD_ANALYSIS_RPM", "YOUTUBE_CREDENTIALS_FILE",
	"LOG_LEVEL", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "PROMOGUARD_POLICY",
	"PROMOGUARD_MAX_RESPONSE_BYTES",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

// TestLoad_Defaults verifies that Load() returns the documented defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := config.Load()

	assert.Equal(t, 6*time.Hour, cfg.Cooldown)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 180*time.Second, cfg.ScheduleDelay)
	assert.Equal(t, 4, cfg.MinWords)
	assert.Equal(t, 25, cfg.MaxWords)
	assert.Equal(t, "community_promo_state.json", cfg.StateFile)
	assert.Equal(t, "caption_prompt.json", cfg.SafeResultFile)
	assert.Equal(t, "file", cfg.StateBackend)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 15, cfg.AnalysisRPM)
	assert.Equal(t, 64<<10, cfg.MaxResponseBytes)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.LedgerDSN)
	assert.Contains(t, cfg.BannedPrefixes, "caption:")
	assert.Contains(t, cfg.BannedExactPhrases, "ypp safe")
	require.NoError(t, cfg.Validate())
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMOGUARD_COOLDOWN", "2h")
	t.Setenv("PROMOGUARD_SCHEDULE_DELAY", "30")
	t.Setenv("PROMOGUARD_HISTORY_LIMIT", "10")
	t.Setenv("PROMOGUARD_STATE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PROMOGUARD_LEDGER_DSN", "sqlite:/tmp/ledger.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("PROMOGUARD_MAX_RESPONSE_BYTES", "4096")

	cfg := config.Load()
	assert.Equal(t, 4096, cfg.AnalysisPolicy().MaxResponseBytes)

	assert.Equal(t, 2*time.Hour, cfg.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.ScheduleDelay)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, "redis", cfg.StateBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "sqlite:/tmp/ledger.db", cfg.LedgerDSN)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.OTelEnabled)
	require.NoError(t, cfg.Validate())

	gc := cfg.GateConfig()
	assert.Equal(t, 2*time.Hour, gc.Cooldown)
	assert.Equal(t, 10, gc.HistoryLimit)
}

func TestValidate_Problems(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMOGUARD_COOLDOWN", "soon")
	t.Setenv("PROMOGUARD_MIN_WORDS", "30")
	t.Setenv("PROMOGUARD_STATE_BACKEND", "etcd")

	cfg := config.Load()
	assert.Equal(t, 6*time.Hour, cfg.Cooldown, "malformed value keeps the default")

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROMOGUARD_COOLDOWN")
	assert.Contains(t, err.Error(), "min_words 30 exceeds max_words 25")
	assert.Contains(t, err.Error(), `unknown state backend "etcd"`)
}

func TestLoadPolicy_Overlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
banned_prefixes: ["caption:", "note:"]
banned_exact_phrases: ["editorial"]
min_words: 3
max_words: 20
cooldown: 4h
schedule_delay: 90s
custom_rules:
  - '!caption.contains("sexy")'
fallback_text: "Fresh looks from the runway"
`), 0644))
	t.Setenv("PROMOGUARD_POLICY", path)

	cfg, err := config.LoadWithPolicy()
	require.NoError(t, err)

	assert.Equal(t, []string{"caption:", "note:"}, cfg.BannedPrefixes)
	assert.Equal(t, []string{"editorial"}, cfg.BannedExactPhrases)
	assert.Equal(t, 3, cfg.MinWords)
	assert.Equal(t, 20, cfg.MaxWords)
	assert.Equal(t, 4*time.Hour, cfg.Cooldown)
	assert.Equal(t, 90*time.Second, cfg.ScheduleDelay)
	assert.Equal(t, 50, cfg.HistoryLimit, "unset keys keep env values")
	assert.Equal(t, "Fresh looks from the runway", cfg.FallbackText)

	p := cfg.AnalysisPolicy()
	assert.Equal(t, []string{`!caption.contains("sexy")`}, p.CustomRules)
	assert.Equal(t, 3, p.MinWords)
}

func TestLoadPolicy_Errors(t *testing.T) {
	_, err := config.LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_words: [oops"), 0644))
	_, err = config.LoadPolicy(path)
	require.Error(t, err)

	clearEnv(t)
	t.Setenv("PROMOGUARD_POLICY", path)
	_, err = config.LoadWithPolicy()
	require.Error(t, err)
}
