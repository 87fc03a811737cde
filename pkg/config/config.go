package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/swargawasal/Final-output-03/pkg/analysis"
	"github.com/swargawasal/Final-output-03/pkg/guard"
	"github.com/swargawasal/Final-output-03/pkg/scheduler"
)

// Config holds promoguard configuration.
type Config struct {
	Cooldown      time.Duration
	HistoryLimit  int
	ScheduleDelay time.Duration
	MinWords      int
	MaxWords      int

	StateFile      string
	SafeResultFile string
	StateBackend   string // "file" | "redis"
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	LedgerDSN      string

	GeminiAPIKey           string
	GeminiModel            string
	AnalysisRPM            int
	MaxResponseBytes       int
	YouTubeCredentialsFile string

	LogLevel     string
	OTelEnabled  bool
	OTelEndpoint string

	PolicyFile         string
	BannedPrefixes     []string
	BannedExactPhrases []string
	CustomRules        []string
	FallbackText       string

	problems []error
}

// Load loads configuration from environment variables. Malformed values keep
// their defaults and are reported by Validate.
func Load() *Config {
	defaults := analysis.DefaultPolicy()
	cfg := &Config{
		StateFile:              getenv("PROMOGUARD_STATE_FILE", "community_promo_state.json"),
		SafeResultFile:         getenv("PROMOGUARD_SAFE_RESULT_FILE", "caption_prompt.json"),
		StateBackend:           strings.ToLower(getenv("PROMOGUARD_STATE_BACKEND", "file")),
		RedisAddr:              getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		LedgerDSN:              os.Getenv("PROMOGUARD_LEDGER_DSN"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getenv("GEMINI_MODEL", analysis.DefaultModel),
		YouTubeCredentialsFile: os.Getenv("YOUTUBE_CREDENTIALS_FILE"),
		LogLevel:               strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		OTelEnabled:            os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:           getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		PolicyFile:             os.Getenv("PROMOGUARD_POLICY"),
		BannedPrefixes:         defaults.BannedPrefixes,
		BannedExactPhrases:     defaults.BannedExactPhrases,
	}

	cfg.Cooldown = cfg.duration("PROMOGUARD_COOLDOWN", guard.DefaultCooldown)
	cfg.ScheduleDelay = cfg.duration("PROMOGUARD_SCHEDULE_DELAY", scheduler.DefaultDelay)
	cfg.HistoryLimit = cfg.integer("PROMOGUARD_HISTORY_LIMIT", guard.DefaultHistoryLimit)
	cfg.MinWords = cfg.integer("PROMOGUARD_MIN_WORDS", defaults.MinWords)
	cfg.MaxWords = cfg.integer("PROMOGUARD_MAX_WORDS", defaults.MaxWords)
	cfg.RedisDB = cfg.integer("REDIS_DB", 0)
	cfg.AnalysisRPM = cfg.integer("PROMOGUARD_ANALYSIS_RPM", 15)
	cfg.MaxResponseBytes = cfg.integer("PROMOGUARD_MAX_RESPONSE_BYTES", defaults.MaxResponseBytes)

	return cfg
}

// LoadWithPolicy loads the environment and overlays PROMOGUARD_POLICY when set.
func LoadWithPolicy() (*Config, error) {
	cfg := Load()
	if cfg.PolicyFile == "" {
		return cfg, cfg.Validate()
	}
	p, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.ApplyPolicy(p)
	return cfg, cfg.Validate()
}

// Validate reports malformed or inconsistent settings.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.problems...)
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative"))
	}
	if c.ScheduleDelay < 0 {
		errs = append(errs, fmt.Errorf("schedule_delay must not be negative"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history_limit must be positive"))
	}
	if c.MinWords <= 0 || c.MaxWords <= 0 {
		errs = append(errs, fmt.Errorf("min_words and max_words must be positive"))
	}
	if c.MinWords > c.MaxWords {
		errs = append(errs, fmt.Errorf("min_words %d exceeds max_words %d", c.MinWords, c.MaxWords))
	}
	if c.MaxResponseBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_response_bytes must be positive"))
	}
	if c.AnalysisRPM < 0 {
		errs = append(errs, fmt.Errorf("analysis rpm must not be negative"))
	}
	switch c.StateBackend {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown state backend %q", c.StateBackend))
	}
	return errors.Join(errs...)
}

// GateConfig returns the guard settings.
func (c *Config) GateConfig() guard.GateConfig {
	return guard.GateConfig{Cooldown: c.Cooldown, HistoryLimit: c.HistoryLimit}
}

// AnalysisPolicy returns the caption acceptance rules.
func (c *Config) AnalysisPolicy() analysis.Policy {
	return analysis.Policy{
		MinWords:           c.MinWords,
		MaxWords:           c.MaxWords,
		BannedPrefixes:     c.BannedPrefixes,
		BannedExactPhrases: c.BannedExactPhrases,
		CustomRules:        c.CustomRules,
		MaxResponseBytes:   c.MaxResponseBytes,
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (c *Config) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// plain integers are seconds
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		c.problems = append(c.problems, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (c *Config) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.problems = append(c.problems, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}
