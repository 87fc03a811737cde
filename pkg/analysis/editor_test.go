package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/swargawasal/Final-output-03/pkg/ledger"
)

type stubAnalyzer struct {
	mu    sync.Mutex
	raw   string
	err   error
	calls []Request
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.raw, s.err
}

type memLedger struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (m *memLedger) Record(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func newEditor(t *testing.T, a Analyzer) (*Editor, *FileSafeResultStore) {
	t.Helper()
	v, err := NewValidator(DefaultPolicy())
	require.NoError(t, err)
	store := NewFileSafeResultStore(filepath.Join(t.TempDir(), "caption_prompt.json"))
	return NewEditor(a, v, NewFallbackChain(store, ""), store), store
}

const goodCaption = "A quiet moment of reflection capturing the essence of style"

func TestEditor_ValidatedIsPersisted(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`Sure! {"approved":true,"caption_final":%q,"risk_level":"LOW"}`, goodCaption)}
	e, store := newEditor(t, a)

	res := e.Analyze(context.Background(), "  Street\x00 style ", map[string]string{"speed": "1.1x"})
	require.Equal(t, StyleValidated, res.Style)
	require.Equal(t, goodCaption, res.FinalText)

	require.Len(t, a.calls, 1)
	require.Equal(t, "Street style", a.calls[0].Description)
	require.Equal(t, DefaultOrigin, a.calls[0].Origin)
	require.Equal(t, "1.1x", a.calls[0].Transformations["speed"])

	sr, err := store.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, goodCaption, sr.FinalText)
	require.Equal(t, DefaultOrigin, sr.Origin)
}

func TestEditor_LabelPrefixFallsBack(t *testing.T) {
	a := &stubAnalyzer{raw: `{"approved":true,"caption_final":"Caption: nice outfit today"}`}
	e, store := newEditor(t, a)

	res := e.Analyze(context.Background(), "title", nil)
	require.Equal(t, StyleFallback, res.Style)
	require.Equal(t, FailureLabelPrefix, res.FailureKind)
	require.True(t, res.Approved)
	require.NotContains(t, res.FinalText, "Caption:")

	_, err := store.Read(context.Background())
	require.ErrorIs(t, err, ErrNoSafeResult, "fallbacks are never persisted")
}

func TestEditor_FallbackReusesLastAccepted(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`{"approved":true,"caption_final":%q}`, goodCaption)}
	e, _ := newEditor(t, a)
	require.Equal(t, StyleValidated, e.Analyze(context.Background(), "t", nil).Style)

	a.raw = "not json at all"
	res := e.Analyze(context.Background(), "t", nil)
	require.Equal(t, StyleFallback, res.Style)
	require.Equal(t, goodCaption, res.FinalText)
	require.Equal(t, FailureMalformedResponse, res.FailureKind)
}

func TestEditor_RejectionSurfaced(t *testing.T) {
	a := &stubAnalyzer{raw: `{"approved":false,"risk_reason":"Explicit language"}`}
	e, _ := newEditor(t, a)

	res := e.Analyze(context.Background(), "My original title", nil)
	require.False(t, res.Approved)
	require.Equal(t, StyleValidated, res.Style)
	require.Equal(t, RiskHigh, res.RiskLevel)
	require.Equal(t, "My original title", res.FinalText)
}

func TestEditor_ServiceErrors(t *testing.T) {
	a := &stubAnalyzer{err: fmt.Errorf("%w: 429", ErrRateLimited)}
	e, _ := newEditor(t, a)

	res := e.Analyze(context.Background(), "t", nil)
	require.Equal(t, FailureRateLimited, res.FailureKind)
	require.Equal(t, RiskUnknown, res.RiskLevel)
	require.Equal(t, quotaReason, res.RiskReason)

	a.err = fmt.Errorf("%w: boom", ErrServiceUnavailable)
	res = e.Analyze(context.Background(), "t", nil)
	require.Equal(t, FailureServiceUnavailable, res.FailureKind)
	require.Equal(t, RiskUnknown, res.RiskLevel)

	a.err = errors.New("unclassified")
	res = e.Analyze(context.Background(), "t", nil)
	require.Equal(t, FailureServiceUnavailable, res.FailureKind)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	panic("sdk nil deref")
}

func TestEditor_AnalyzerPanicFallsBack(t *testing.T) {
	e, _ := newEditor(t, panickingAnalyzer{})

	var res Result
	require.NotPanics(t, func() {
		res = e.Analyze(context.Background(), "Street style", nil)
	})
	require.True(t, res.Approved)
	require.Equal(t, StyleFallback, res.Style)
	require.Equal(t, FailureServiceUnavailable, res.FailureKind)
	require.Equal(t, RiskUnknown, res.RiskLevel)
	require.Equal(t, DefaultFallbackText, res.FinalText)
}

func TestEditor_NoAnalyzer(t *testing.T) {
	e, _ := newEditor(t, nil)
	res := e.Analyze(context.Background(), "t", nil)
	require.Equal(t, StyleFallback, res.Style)
	require.Equal(t, DefaultFallbackText, res.FinalText)
	require.Equal(t, FailureServiceUnavailable, res.FailureKind)
}

func TestEditor_LocalLimiter(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`{"approved":true,"caption_final":%q}`, goodCaption)}
	e, _ := newEditor(t, a)
	e.SetLimiter(rate.NewLimiter(rate.Every(1<<62), 1))

	require.Equal(t, StyleValidated, e.Analyze(context.Background(), "t", nil).Style)
	res := e.Analyze(context.Background(), "t", nil)
	require.Equal(t, FailureRateLimited, res.FailureKind)
	require.Len(t, a.calls, 1, "refused call never reaches the service")
}

func TestEditor_PersistFailureSwallowed(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`{"approved":true,"caption_final":%q}`, goodCaption)}
	v, err := NewValidator(DefaultPolicy())
	require.NoError(t, err)
	broken := brokenStore{err: errors.New("disk full")}
	e := NewEditor(a, v, NewFallbackChain(broken, ""), broken)

	res := e.Analyze(context.Background(), "t", nil)
	require.Equal(t, StyleValidated, res.Style)
	require.Equal(t, goodCaption, res.FinalText)
}

func TestEditor_LedgerEntries(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`{"approved":true,"caption_final":%q}`, goodCaption)}
	e, _ := newEditor(t, a)
	rec := &memLedger{}
	e.SetRecorder(rec)

	e.Analyze(context.Background(), "t", nil)
	a.raw = `{"approved":true,"caption_final":"#nope nope nope nope"}`
	e.Analyze(context.Background(), "t", nil)
	a.raw = `{"approved":false}`
	e.Analyze(context.Background(), "t", nil)

	require.Len(t, rec.entries, 3)
	require.Equal(t, ledger.KindAnalysis, rec.entries[0].Kind)
	require.Equal(t, "VALIDATED", rec.entries[0].Outcome)
	require.Equal(t, "FALLBACK", rec.entries[1].Outcome)
	require.Equal(t, string(FailureDisallowedSymbol), rec.entries[1].Reason)
	require.Equal(t, "REJECTED", rec.entries[2].Outcome)
}

func TestEditor_ConcurrentAnalyze(t *testing.T) {
	a := &stubAnalyzer{raw: fmt.Sprintf(`{"approved":true,"caption_final":%q}`, goodCaption)}
	e, store := newEditor(t, a)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Analyze(context.Background(), "t", nil)
			assert.True(t, res.Approved)
		}()
	}
	wg.Wait()

	sr, err := store.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, goodCaption, sr.FinalText)
}
