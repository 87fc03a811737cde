package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swargawasal/Final-output-03/pkg/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock { return &fakeClock{now: time.Unix(unix, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memRecorder struct {
	mu      sync.Mutex
	entries []ledger.Entry
	err     error
}

func (r *memRecorder) Record(ctx context.Context, e ledger.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

// recordingStore counts successful saves and can be made to fail them.
type recordingStore struct {
	*MemoryStateStore
	mu    sync.Mutex
	saves int
	err   error
}

func newRecordingStore(initial State) *recordingStore {
	return &recordingStore{MemoryStateStore: NewMemoryStateStore(initial)}
}

func (r *recordingStore) Save(ctx context.Context, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saves++
	return r.MemoryStateStore.Save(ctx, s)
}

func (r *recordingStore) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func resolved(ctx context.Context, c Candidate) (Target, bool, error) {
	return Target{Owner: "UC-owner", Target: "vid123"}, true, nil
}

func countingPerform(n *int32) PerformFunc {
	return func(ctx context.Context, t Target, c Candidate) error {
		atomic.AddInt32(n, 1)
		return nil
	}
}

// Fresh state: first attempt performs, a different fingerprint one second
// later is rate limited with the rest of the window remaining.
func TestGate_FreshStateThenRateLimited(t *testing.T) {
	clock := newFakeClock(1000)
	store := NewMemoryStateStore(State{})
	g := NewGate(store, DefaultGateConfig(), clock)

	var calls int32
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "abc"}, resolved, countingPerform(&calls))
	require.True(t, out.Performed())
	require.Equal(t, int32(1), calls)

	clock.Set(1001)
	out = g.Attempt(context.Background(), Candidate{Fingerprint: "xyz"}, resolved, countingPerform(&calls))
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, ReasonRateLimited, out.Reason)
	require.Equal(t, 21599*time.Second, out.Remaining)
	require.Equal(t, int32(1), calls, "no side effect on a skip path")

	st := store.Load(context.Background())
	require.Equal(t, time.Unix(1000, 0), st.LastActionTime)
	require.Equal(t, []string{"abc"}, st.SeenFingerprints)
}

func TestGate_DuplicateAfterCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := &fakeClock{now: now}
	store := newRecordingStore(State{
		LastActionTime:   now.Add(-7 * time.Hour),
		SeenFingerprints: []string{"abc"},
	})
	g := NewGate(store, DefaultGateConfig(), clock)

	var calls int32
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "abc"}, resolved, countingPerform(&calls))
	require.Equal(t, ReasonDuplicate, out.Reason)
	require.Zero(t, calls)
	require.Zero(t, store.Saves())
}

func TestGate_PreconditionUnresolved(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), newFakeClock(1000))

	var calls int32
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f", Reference: "not-a-url"},
		func(ctx context.Context, c Candidate) (Target, bool, error) { return Target{}, false, nil },
		countingPerform(&calls))

	require.Equal(t, ReasonPreconditionUnresolved, out.Reason)
	require.NoError(t, out.Err)
	require.Zero(t, calls)
}

func TestGate_ResolveErrorIsExternalFailure(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), newFakeClock(1000))

	var calls int32
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"},
		func(ctx context.Context, c Candidate) (Target, bool, error) {
			return Target{}, false, errors.New("403 forbidden")
		},
		countingPerform(&calls))

	require.Equal(t, ReasonExternalFailure, out.Reason)
	require.ErrorContains(t, out.Err, "403")
	require.Zero(t, calls)
}

func TestGate_PerformErrorIsNotRecorded(t *testing.T) {
	store := newRecordingStore(State{})
	clock := newFakeClock(1000)
	g := NewGate(store, DefaultGateConfig(), clock)

	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, resolved,
		func(ctx context.Context, t Target, c Candidate) error { return errors.New("quota") })
	require.Equal(t, ReasonExternalFailure, out.Reason)
	require.Zero(t, store.Saves())

	// Nothing was consumed: the same content may go out right away.
	var calls int32
	out = g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, resolved, countingPerform(&calls))
	require.True(t, out.Performed())
	require.Equal(t, int32(1), calls)
}

func TestGate_PerformPanicIsContained(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), newFakeClock(1000))

	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, resolved,
		func(ctx context.Context, t Target, c Candidate) error { panic("nil map") })
	require.Equal(t, ReasonExternalFailure, out.Reason)
	require.ErrorContains(t, out.Err, "nil map")
}

func TestGate_NilPerformIsExternalFailure(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), newFakeClock(1000))
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, nil, nil)
	require.Equal(t, ReasonExternalFailure, out.Reason)
}

func TestGate_PassesResolvedTarget(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), newFakeClock(1000))

	var got Target
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, resolved,
		func(ctx context.Context, t Target, c Candidate) error { got = t; return nil })
	require.True(t, out.Performed())
	require.Equal(t, Target{Owner: "UC-owner", Target: "vid123"}, got)
}

func TestGate_SaveFailureIsSwallowed(t *testing.T) {
	store := newRecordingStore(State{})
	store.err = errors.New("read-only filesystem")
	g := NewGate(store, DefaultGateConfig(), newFakeClock(1000))

	var calls int32
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "f"}, resolved, countingPerform(&calls))
	require.True(t, out.Performed())
	require.Equal(t, int32(1), calls)
}

func TestGate_CooldownBoundary(t *testing.T) {
	clock := newFakeClock(1000)
	g := NewGate(NewMemoryStateStore(State{}), GateConfig{Cooldown: time.Hour}, clock)

	var calls int32
	require.True(t, g.Attempt(context.Background(), Candidate{Fingerprint: "a"}, resolved, countingPerform(&calls)).Performed())

	clock.Advance(time.Hour - time.Nanosecond)
	require.Equal(t, ReasonRateLimited, g.Attempt(context.Background(), Candidate{Fingerprint: "b"}, resolved, countingPerform(&calls)).Reason)

	clock.Advance(time.Nanosecond)
	require.True(t, g.Attempt(context.Background(), Candidate{Fingerprint: "b"}, resolved, countingPerform(&calls)).Performed())
	require.Equal(t, int32(2), calls)
}

func TestGate_HistoryEvictsOldest(t *testing.T) {
	clock := newFakeClock(1000)
	store := NewMemoryStateStore(State{})
	g := NewGate(store, GateConfig{Cooldown: time.Second, HistoryLimit: 3}, clock)

	var calls int32
	for i := 0; i < 4; i++ {
		out := g.Attempt(context.Background(), Candidate{Fingerprint: fmt.Sprintf("fp-%d", i)}, resolved, countingPerform(&calls))
		require.True(t, out.Performed())
		clock.Advance(time.Second)
	}

	st := store.Load(context.Background())
	require.Equal(t, []string{"fp-1", "fp-2", "fp-3"}, st.SeenFingerprints)

	// fp-0 fell out of the window and may be acted on again.
	out := g.Attempt(context.Background(), Candidate{Fingerprint: "fp-0"}, resolved, countingPerform(&calls))
	require.True(t, out.Performed())
	require.Equal(t, int32(5), calls)
}

// Two simultaneous attempts with the same content: exactly one performs.
func TestGate_ConcurrentSameFingerprint(t *testing.T) {
	clock := newFakeClock(1000)
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), clock)

	var calls int32
	release := make(chan struct{})
	perform := func(ctx context.Context, t Target, c Candidate) error {
		atomic.AddInt32(&calls, 1)
		<-release
		return nil
	}

	outs := make([]Outcome, 2)
	var wg sync.WaitGroup
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = g.Attempt(context.Background(), Candidate{Fingerprint: "same"}, resolved, perform)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls)
	var performedN, skippedN int
	for _, o := range outs {
		if o.Performed() {
			performedN++
		} else {
			skippedN++
			// the cooldown check runs first, so the loser reports the window
			assert.Contains(t, []Reason{ReasonRateLimited, ReasonDuplicate}, o.Reason)
		}
	}
	require.Equal(t, 1, performedN)
	require.Equal(t, 1, skippedN)
}

// With no cooldown in the way the loser of the race sees the duplicate.
func TestGate_ConcurrentSameFingerprintReportsDuplicate(t *testing.T) {
	clock := newFakeClock(1000)
	g := NewGate(NewMemoryStateStore(State{}), GateConfig{Cooldown: time.Nanosecond}, clock)
	// keep wall time moving so only the fingerprint check can reject
	clock.Advance(time.Second)

	var calls int32
	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = g.Attempt(context.Background(), Candidate{Fingerprint: "same"}, resolved,
				func(ctx context.Context, t Target, c Candidate) error {
					atomic.AddInt32(&calls, 1)
					clock.Advance(time.Second)
					return nil
				})
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), calls)
	reasons := []Reason{outs[0].Reason, outs[1].Reason}
	require.Contains(t, reasons, ReasonDuplicate)
	require.Contains(t, reasons, ReasonNone)
}

func TestGate_RecordsLedgerEntries(t *testing.T) {
	rec := &memRecorder{err: errors.New("ledger offline")}
	clock := newFakeClock(1000)
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), clock)
	g.SetRecorder(rec)

	var calls int32
	g.Attempt(context.Background(), Candidate{Fingerprint: "a"}, resolved, countingPerform(&calls))
	g.Attempt(context.Background(), Candidate{Fingerprint: "b"}, resolved, countingPerform(&calls))

	require.Len(t, rec.entries, 2)
	assert.Equal(t, ledger.KindGate, rec.entries[0].Kind)
	assert.Equal(t, "PERFORMED", rec.entries[0].Outcome)
	assert.Equal(t, "RATE_LIMITED", rec.entries[1].Reason)
	assert.Contains(t, rec.entries[1].Detail, "remaining=")
}

func TestGate_Snapshot(t *testing.T) {
	clock := newFakeClock(1000)
	g := NewGate(NewMemoryStateStore(State{}), DefaultGateConfig(), clock)

	snap := g.Snapshot(context.Background())
	require.Zero(t, snap.Remaining)
	require.Zero(t, snap.HistoryLen)

	var calls int32
	g.Attempt(context.Background(), Candidate{Fingerprint: "a"}, resolved, countingPerform(&calls))
	clock.Advance(time.Hour)

	snap = g.Snapshot(context.Background())
	require.Equal(t, 5*time.Hour, snap.Remaining)
	require.Equal(t, 1, snap.HistoryLen)
	require.Equal(t, time.Unix(1000, 0), snap.LastActionTime)
}

func TestNewGate_Defaults(t *testing.T) {
	g := NewGate(NewMemoryStateStore(State{}), GateConfig{})
	require.Equal(t, DefaultCooldown, g.Config().Cooldown)
	require.Equal(t, DefaultHistoryLimit, g.Config().HistoryLimit)
}
