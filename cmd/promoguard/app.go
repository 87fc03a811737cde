package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/swargawasal/Final-output-03/pkg/analysis"
	"github.com/swargawasal/Final-output-03/pkg/config"
	"github.com/swargawasal/Final-output-03/pkg/guard"
	"github.com/swargawasal/Final-output-03/pkg/ledger"
	"github.com/swargawasal/Final-output-03/pkg/observability"
	"github.com/swargawasal/Final-output-03/pkg/platform"
)

// app holds the components one command invocation needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
	redis  *redis.Client
	ledger *ledger.SQLLedger
	store  guard.StateStore
	gate   *guard.Gate
}

func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	cfg, err := config.LoadWithPolicy()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := newLogger(stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTelEnabled
	obsCfg.OTLPEndpoint = cfg.OTelEndpoint
	if a.obs, err = observability.New(ctx, obsCfg); err != nil {
		return nil, err
	}

	if cfg.LedgerDSN != "" {
		if a.ledger, err = ledger.Open(cfg.LedgerDSN); err != nil {
			a.close()
			return nil, err
		}
	}

	switch cfg.StateBackend {
	case "redis":
		rs := guard.NewRedisStateStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		a.redis = rs.Client()
		a.store = rs
	default:
		a.store = guard.NewFileStateStore(cfg.StateFile, logger)
	}

	a.gate = a.newGate(a.store)
	return a, nil
}

func (a *app) newGate(store guard.StateStore) *guard.Gate {
	g := guard.NewGate(store, a.cfg.GateConfig())
	g.SetLogger(a.logger)
	g.SetObservability(a.obs)
	if a.ledger != nil {
		g.SetRecorder(a.ledger)
	}
	return g
}

func (a *app) safeResultStore() analysis.SafeResultStore {
	if a.redis != nil {
		return analysis.NewRedisSafeResultStore(a.redis, analysis.DefaultRedisSafeResultKey)
	}
	return analysis.NewFileSafeResultStore(a.cfg.SafeResultFile)
}

func (a *app) editor(ctx context.Context) (*analysis.Editor, error) {
	v, err := analysis.NewValidator(a.cfg.AnalysisPolicy())
	if err != nil {
		return nil, err
	}
	store := a.safeResultStore()
	fc := analysis.NewFallbackChain(store, a.cfg.FallbackText)
	fc.SetLogger(a.logger)

	var analyzer analysis.Analyzer
	if a.cfg.GeminiAPIKey != "" {
		g, err := analysis.NewGeminiAnalyzer(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			a.logger.WarnContext(ctx, "analysis service unavailable", "error", err)
		} else {
			a.logger.InfoContext(ctx, "analysis service active", "model", g.Model())
			analyzer = g
		}
	} else {
		a.logger.WarnContext(ctx, "analysis service inactive: GEMINI_API_KEY not set")
	}

	e := analysis.NewEditor(analyzer, v, fc, store)
	e.SetLogger(a.logger)
	e.SetObservability(a.obs)
	if a.ledger != nil {
		e.SetRecorder(a.ledger)
	}
	if a.cfg.AnalysisRPM > 0 {
		e.SetLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(a.cfg.AnalysisRPM)), 1))
	}
	return e, nil
}

// promotionTarget returns the platform to post to and the gate guarding it.
// Without credentials the dry-run platform is paired with a gate over an
// in-memory copy of the durable state, so unposted actions are never saved.
func (a *app) promotionTarget(ctx context.Context) (platform.Platform, *guard.Gate, error) {
	if a.cfg.YouTubeCredentialsFile == "" {
		a.logger.WarnContext(ctx, "YOUTUBE_CREDENTIALS_FILE not set, promotions are logged only and guard state is not saved")
		dry := guard.NewMemoryStateStore(a.store.Load(ctx))
		return platform.NewDryRun("dry-run", a.logger), a.newGate(dry), nil
	}
	yt, err := platform.NewYouTube(ctx, option.WithCredentialsFile(a.cfg.YouTubeCredentialsFile))
	if err != nil {
		return nil, nil, err
	}
	yt.SetLogger(a.logger)
	return yt, a.gate, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if err := a.obs.Shutdown(ctx); err != nil {
		a.logger.Warn("observability shutdown failed", "error", err)
	}
}
