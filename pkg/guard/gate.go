package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/swargawasal/Final-output-03/pkg/ledger"
	"github.com/swargawasal/Final-output-03/pkg/observability"
)

// Clock provides authority time for the Gate. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// ResolveFunc resolves the owner and target an action needs. ok=false means
// the environment lacks the linkage and the attempt is skipped without error.
// A non-nil error is treated as an external failure.
type ResolveFunc func(ctx context.Context, c Candidate) (t Target, ok bool, err error)

// PerformFunc runs the side effect. It is called at most once per attempt.
type PerformFunc func(ctx context.Context, t Target, c Candidate) error

// GateConfig tunes the Gate. Zero fields take the defaults.
type GateConfig struct {
	Cooldown     time.Duration
	HistoryLimit int
}

// DefaultGateConfig returns a 6h cooldown and a 50 entry history.
func DefaultGateConfig() GateConfig {
	return GateConfig{Cooldown: DefaultCooldown, HistoryLimit: DefaultHistoryLimit}
}

// Gate decides whether a side-effecting action may proceed and records the
// ones that do. All attempts in a process are serialized, from state load
// through the external call to the save, so two concurrent attempts cannot
// both pass the checks.
type Gate struct {
	mu       sync.Mutex
	store    StateStore
	config   GateConfig
	clock    Clock
	logger   *slog.Logger
	recorder ledger.Recorder
	obs      *observability.Provider
}

// NewGate creates a Gate over store. If clock is omitted the wall clock is used.
func NewGate(store StateStore, config GateConfig, clock ...Clock) *Gate {
	var c Clock = wallClock{}
	if len(clock) > 0 && clock[0] != nil {
		c = clock[0]
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	return &Gate{
		store:  store,
		config: config,
		clock:  c,
		logger: slog.Default().With("component", "guard"),
	}
}

// SetLogger replaces the component logger.
func (g *Gate) SetLogger(l *slog.Logger) {
	g.logger = l.With("component", "guard")
}

// SetRecorder attaches a decision ledger.
func (g *Gate) SetRecorder(r ledger.Recorder) {
	g.recorder = r
}

// SetObservability attaches telemetry.
func (g *Gate) SetObservability(p *observability.Provider) {
	g.obs = p
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig { return g.config }

// Attempt evaluates c and, if allowed, resolves its target and performs it.
// It never returns an error: every failure is a classified skip.
func (g *Gate) Attempt(ctx context.Context, c Candidate, resolve ResolveFunc, perform PerformFunc) (out Outcome) {
	ctx, finish := g.obs.TrackOperation(ctx, "guard.attempt",
		attribute.String("fingerprint", shortFP(c.Fingerprint)))
	defer func() {
		finish(out.Err)
		g.obs.RecordGateAttempt(ctx, string(out.Status), string(out.Reason))
		g.record(ctx, out)
	}()

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.store.Load(ctx)
	now := g.clock.Now()

	// 1. Cooldown
	if elapsed := st.Elapsed(now); elapsed < g.config.Cooldown {
		out = skipped(c.Fingerprint, ReasonRateLimited)
		out.Remaining = g.config.Cooldown - elapsed
		g.logger.InfoContext(ctx, "promotion skipped: rate limit",
			"remaining_minutes", int(out.Remaining.Minutes()),
			"remaining", out.Remaining.Round(time.Second).String(),
		)
		return out
	}

	// 2. Duplicate content
	if st.Seen(c.Fingerprint) {
		g.logger.InfoContext(ctx, "promotion skipped: duplicate content", "fingerprint", shortFP(c.Fingerprint))
		return skipped(c.Fingerprint, ReasonDuplicate)
	}

	// 3. Preconditions
	var target Target
	if resolve != nil {
		t, ok, err := g.resolveSafely(ctx, resolve, c)
		if err != nil {
			out = skipped(c.Fingerprint, ReasonExternalFailure)
			out.Err = err
			g.logger.WarnContext(ctx, "promotion skipped: could not resolve target", "error", err)
			return out
		}
		if !ok {
			g.logger.WarnContext(ctx, "promotion skipped: precondition unresolved", "reference", c.Reference)
			return skipped(c.Fingerprint, ReasonPreconditionUnresolved)
		}
		target = t
	}

	// 4. Side effect (best effort, never retried here)
	if err := g.performSafely(ctx, perform, target, c); err != nil {
		out = skipped(c.Fingerprint, ReasonExternalFailure)
		out.Err = err
		g.logger.WarnContext(ctx, "promotion skipped: platform call failed", "error", err)
		return out
	}

	// 5. Record
	next := st.Record(now, c.Fingerprint, g.config.HistoryLimit)
	if err := g.store.Save(ctx, next); err != nil {
		g.obs.RecordStorageFailure(ctx, "guard_state", "save")
		g.logger.WarnContext(ctx, "guard state not persisted", "error", err)
	}

	g.logger.InfoContext(ctx, "promotion performed", "fingerprint", shortFP(c.Fingerprint))
	return performed(c.Fingerprint)
}

func (g *Gate) resolveSafely(ctx context.Context, resolve ResolveFunc, c Candidate) (t Target, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolve panicked: %v", r)
		}
	}()
	return resolve(ctx, c)
}

func (g *Gate) performSafely(ctx context.Context, perform PerformFunc, t Target, c Candidate) (err error) {
	if perform == nil {
		return fmt.Errorf("no action configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return perform(ctx, t, c)
}

func (g *Gate) record(ctx context.Context, out Outcome) {
	if g.recorder == nil {
		return
	}
	e := ledger.Entry{
		Kind:        ledger.KindGate,
		Outcome:     string(out.Status),
		Reason:      string(out.Reason),
		Fingerprint: out.Fingerprint,
		CreatedAt:   g.clock.Now(),
	}
	switch {
	case out.Err != nil:
		e.Detail = out.Err.Error()
	case out.Reason == ReasonRateLimited:
		e.Detail = "remaining=" + out.Remaining.Round(time.Second).String()
	}
	if err := g.recorder.Record(ctx, e); err != nil {
		g.logger.WarnContext(ctx, "ledger write failed", "error", err)
	}
}

// Snapshot is a read-only view of the guard record.
type Snapshot struct {
	LastActionTime time.Time     `json:"last_action_time"`
	Remaining      time.Duration `json:"remaining"`
	HistoryLen     int           `json:"history_len"`
}

// Snapshot reports the current cooldown and history without mutating them.
func (g *Gate) Snapshot(ctx context.Context) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.store.Load(ctx)
	snap := Snapshot{LastActionTime: st.LastActionTime, HistoryLen: len(st.SeenFingerprints)}
	if elapsed := st.Elapsed(g.clock.Now()); elapsed < g.config.Cooldown {
		snap.Remaining = g.config.Cooldown - elapsed
	}
	return snap
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
