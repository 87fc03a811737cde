package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// DefaultFallbackText is used when no stored result passes the re-check.
const DefaultFallbackText = "A quiet moment captured today"

const (
	offlineReason = "Brain Offline - Used Safe Template"
	quotaReason   = "Quota Exceeded (429 Error), so Brain is Offline."
)

// FallbackChain produces a substitute Result without calling the analysis
// service. Fallback is total.
type FallbackChain struct {
	store       SafeResultStore
	defaultText string
	logger      *slog.Logger
}

// NewFallbackChain returns a chain over store (may be nil). defaultText
// replaces DefaultFallbackText if it passes the re-check.
func NewFallbackChain(store SafeResultStore, defaultText string) *FallbackChain {
	fc := &FallbackChain{
		store:       store,
		defaultText: DefaultFallbackText,
		logger:      slog.Default().With("component", "fallback"),
	}
	if t := strings.TrimSpace(defaultText); t != "" {
		if Reusable(t) {
			fc.defaultText = t
		} else {
			fc.logger.Warn("configured fallback text rejected, using built-in default", "text", t)
		}
	}
	return fc
}

// SetLogger replaces the component logger.
func (fc *FallbackChain) SetLogger(l *slog.Logger) {
	fc.logger = l.With("component", "fallback")
}

// Reusable is the minimal re-check a stored or configured text must pass
// before it is shown: more than 5 characters, no '#', at least 2 words.
func Reusable(text string) bool {
	return len(text) > 5 &&
		!strings.Contains(text, "#") &&
		len(strings.Fields(text)) >= 2
}

// Fallback returns a safe Result for kind.
func (fc *FallbackChain) Fallback(ctx context.Context, kind FailureKind) Result {
	res := Result{
		Approved:    true,
		FinalText:   fc.text(ctx),
		RiskLevel:   RiskLow,
		RiskReason:  offlineReason,
		Style:       StyleFallback,
		Source:      DefaultOrigin,
		FailureKind: kind,
	}
	if kind.ServiceDown() {
		res.RiskLevel = RiskUnknown
	}
	if kind == FailureRateLimited {
		res.RiskReason = quotaReason
	}
	return res
}

func (fc *FallbackChain) text(ctx context.Context) string {
	if fc.store == nil {
		return fc.defaultText
	}
	sr, err := fc.store.Read(ctx)
	switch {
	case errors.Is(err, ErrNoSafeResult):
		return fc.defaultText
	case err != nil:
		fc.logger.WarnContext(ctx, "stored fallback unreadable", "error", err)
		return fc.defaultText
	}
	val := strings.TrimSpace(sr.FinalText)
	if !Reusable(val) {
		fc.logger.WarnContext(ctx, "stored fallback failed re-check", "text", val)
		return fc.defaultText
	}
	fc.logger.InfoContext(ctx, "using stored fallback", "text", val)
	return val
}
