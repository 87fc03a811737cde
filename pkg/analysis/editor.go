package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/swargawasal/Final-output-03/pkg/ledger"
	"github.com/swargawasal/Final-output-03/pkg/observability"
)

// Editor turns a clip description into a display caption. It never returns
// an error: service, validation and storage failures all end in a fallback.
type Editor struct {
	analyzer  Analyzer
	validator *Validator
	fallback  *FallbackChain
	store     SafeResultStore
	limiter   *rate.Limiter
	origin    string

	logger   *slog.Logger
	recorder ledger.Recorder
	obs      *observability.Provider
}

// NewEditor wires the pipeline. analyzer may be nil, in which case every
// call falls back as if the service were unavailable. store may be nil.
func NewEditor(analyzer Analyzer, validator *Validator, fallback *FallbackChain, store SafeResultStore) *Editor {
	return &Editor{
		analyzer:  analyzer,
		validator: validator,
		fallback:  fallback,
		store:     store,
		origin:    DefaultOrigin,
		logger:    slog.Default().With("component", "editor"),
	}
}

// SetLimiter bounds calls to the analysis service. Calls over the limit
// fall back with FailureRateLimited instead of waiting.
func (e *Editor) SetLimiter(l *rate.Limiter) { e.limiter = l }

// SetLogger replaces the component logger.
func (e *Editor) SetLogger(l *slog.Logger) { e.logger = l.With("component", "editor") }

// SetRecorder attaches a decision ledger.
func (e *Editor) SetRecorder(r ledger.Recorder) { e.recorder = r }

// SetObservability attaches telemetry.
func (e *Editor) SetObservability(p *observability.Provider) { e.obs = p }

// Analyze asks the service for a caption for title and validates the answer.
func (e *Editor) Analyze(ctx context.Context, title string, transformations map[string]string) (res Result) {
	ctx, finish := e.obs.TrackOperation(ctx, "analysis.analyze", attribute.String("origin", e.origin))
	defer func() {
		finish(nil)
		e.obs.RecordAnalysisResult(ctx, string(res.Style), string(res.FailureKind))
		e.record(ctx, res)
	}()

	clean := Sanitize(title)

	if e.analyzer == nil {
		e.logger.WarnContext(ctx, "analysis service not configured")
		return e.fallback.Fallback(ctx, FailureServiceUnavailable)
	}
	if e.limiter != nil && !e.limiter.Allow() {
		e.logger.WarnContext(ctx, "analysis call refused by local limiter")
		return e.fallback.Fallback(ctx, FailureRateLimited)
	}

	raw, err := e.analyzeSafely(ctx, Request{
		Description:     clean,
		Origin:          e.origin,
		Transformations: transformations,
	})
	if err != nil {
		kind := FailureServiceUnavailable
		if errors.Is(err, ErrRateLimited) {
			kind = FailureRateLimited
		}
		e.logger.WarnContext(ctx, "analysis service failed", "failure_kind", kind, "error", err)
		return e.fallback.Fallback(ctx, kind)
	}
	e.logger.DebugContext(ctx, "raw analysis response", "response", raw)

	return e.Accept(ctx, raw, clean)
}

func (e *Editor) analyzeSafely(ctx context.Context, req Request) (raw string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: analyzer panicked: %v", ErrServiceUnavailable, r)
		}
	}()
	return e.analyzer.Analyze(ctx, req)
}

// Accept validates raw. On a validated approval the caption is persisted as
// the next fallback; on any validation failure the fallback is returned.
func (e *Editor) Accept(ctx context.Context, raw, originalContext string) Result {
	res, f := e.validator.Validate(raw, originalContext)
	if f != nil {
		e.logger.WarnContext(ctx, "analysis response rejected by validator",
			"failure_kind", f.Kind,
			"detail", f.Detail,
		)
		return e.fallback.Fallback(ctx, f.Kind)
	}
	if !res.Approved {
		e.logger.InfoContext(ctx, "analysis service rejected content", "reason", res.RiskReason)
		return res
	}
	if e.store != nil {
		if err := e.store.Persist(ctx, res.FinalText, e.origin); err != nil {
			e.obs.RecordStorageFailure(ctx, "safe_result", "persist")
			e.logger.WarnContext(ctx, "failed to save caption persistence", "error", err)
		}
	}
	return res
}

func (e *Editor) record(ctx context.Context, res Result) {
	if e.recorder == nil {
		return
	}
	outcome := string(res.Style)
	if !res.Approved {
		outcome = "REJECTED"
	}
	entry := ledger.Entry{
		Kind:    ledger.KindAnalysis,
		Outcome: outcome,
		Reason:  string(res.FailureKind),
		Detail:  res.FinalText,
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "ledger write failed", "error", err)
	}
}
