// Package guard sequences a side-effecting promotion against wall-clock time
// and content identity. A Gate lets an action through at most once per
// cooldown window and never twice for the same fingerprint while that
// fingerprint is still in the bounded history.
package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"slices"
	"time"
)

const (
	// DefaultCooldown is the minimum spacing between two performed actions.
	DefaultCooldown = 6 * time.Hour
	// DefaultHistoryLimit bounds the fingerprint history (FIFO eviction).
	DefaultHistoryLimit = 50
)

// Status is the terminal state of one attempt.
type Status string

const (
	StatusPerformed Status = "PERFORMED"
	StatusSkipped   Status = "SKIPPED"
)

// Reason classifies a skipped attempt. Every reason is an expected no-op.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonRateLimited            Reason = "RATE_LIMITED"
	ReasonDuplicate              Reason = "DUPLICATE"
	ReasonPreconditionUnresolved Reason = "PRECONDITION_UNRESOLVED"
	ReasonExternalFailure        Reason = "EXTERNAL_FAILURE"
)

// Outcome is the result of Gate.Attempt.
type Outcome struct {
	Status      Status        `json:"status"`
	Reason      Reason        `json:"reason,omitempty"`
	Remaining   time.Duration `json:"remaining,omitempty"` // set for RATE_LIMITED
	Fingerprint string        `json:"fingerprint"`
	Err         error         `json:"-"` // set for EXTERNAL_FAILURE
}

// Performed reports whether the side effect ran and was recorded.
func (o Outcome) Performed() bool { return o.Status == StatusPerformed }

func performed(fp string) Outcome {
	return Outcome{Status: StatusPerformed, Fingerprint: fp}
}

func skipped(fp string, reason Reason) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Fingerprint: fp}
}

// Candidate is one prospective action. It lives for a single attempt.
type Candidate struct {
	Fingerprint string
	Content     string
	// Reference is the free-form pointer the target is resolved from
	// (e.g. a video URL).
	Reference string
}

// NewCandidate fingerprints content and returns a candidate for it.
func NewCandidate(content, reference string) Candidate {
	return Candidate{
		Fingerprint: Fingerprint(content),
		Content:     content,
		Reference:   reference,
	}
}

// Fingerprint returns the hex SHA-256 digest of the exact text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Target is what a Precondition resolves before the action may run.
type Target struct {
	Owner  string
	Target string
}

// State is the durable guard record. The zero value is the initial state.
type State struct {
	LastActionTime   time.Time
	SeenFingerprints []string
}

// Seen reports whether fp is in the bounded history.
func (s State) Seen(fp string) bool {
	return slices.Contains(s.SeenFingerprints, fp)
}

// Record returns a copy of s with the action at now appended. LastActionTime
// never moves backwards and the history keeps only the newest limit entries.
func (s State) Record(now time.Time, fp string, limit int) State {
	next := State{LastActionTime: s.LastActionTime}
	if now.After(next.LastActionTime) {
		next.LastActionTime = now
	}

	hist := make([]string, 0, len(s.SeenFingerprints)+1)
	for _, h := range s.SeenFingerprints {
		if h != fp {
			hist = append(hist, h)
		}
	}
	hist = append(hist, fp)
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	next.SeenFingerprints = hist
	return next
}

// Elapsed returns the time since the last action. The initial state reports
// an effectively infinite elapsed time.
func (s State) Elapsed(now time.Time) time.Duration {
	if s.LastActionTime.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(s.LastActionTime)
}

// stateDocument is the on-disk shape. The key names match the state files
// written by earlier releases so existing history keeps deduplicating.
type stateDocument struct {
	LastRun      float64  `json:"last_run"`
	PostedHashes []string `json:"posted_hashes"`
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	doc := stateDocument{PostedHashes: s.SeenFingerprints}
	if doc.PostedHashes == nil {
		doc.PostedHashes = []string{}
	}
	if !s.LastActionTime.IsZero() {
		doc.LastRun = float64(s.LastActionTime.UnixMicro()) / 1e6
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*s = State{SeenFingerprints: doc.PostedHashes}
	if doc.LastRun > 0 {
		s.LastActionTime = time.UnixMicro(int64(math.Round(doc.LastRun * 1e6)))
	}
	return nil
}
