// Package analysis decides whether text returned by the content-analysis
// service may be displayed. Every response is treated as untrusted: it is
// extracted, schema checked and rule checked, and any failure is replaced by
// a fallback that is safe by construction.
package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RiskLevel is the reported monetization risk.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskUnknown RiskLevel = "UNKNOWN"
)

// Style records where FinalText came from.
type Style string

const (
	StyleValidated Style = "VALIDATED"
	StyleFallback  Style = "FALLBACK"
)

// FailureKind classifies why a response was not accepted.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureMalformedResponse  FailureKind = "MALFORMED_RESPONSE"
	FailureLengthViolation    FailureKind = "LENGTH_VIOLATION"
	FailureLabelPrefix        FailureKind = "LABEL_PREFIX"
	FailureClassificationLeak FailureKind = "CLASSIFICATION_LEAK"
	FailureDisallowedSymbol   FailureKind = "DISALLOWED_SYMBOL"
	FailureCustomRule         FailureKind = "CUSTOM_RULE"
	FailureServiceUnavailable FailureKind = "SERVICE_UNAVAILABLE"
	FailureRateLimited        FailureKind = "RATE_LIMITED"
)

// ServiceDown reports whether k means the analysis service was not reached.
func (k FailureKind) ServiceDown() bool {
	return k == FailureServiceUnavailable || k == FailureRateLimited
}

var (
	// ErrRateLimited is wrapped by analyzers when the service reports quota
	// exhaustion, and by the editor when the local limiter refuses a call.
	ErrRateLimited = errors.New("analysis: rate limited")
	// ErrServiceUnavailable is wrapped by analyzers for any other failure.
	ErrServiceUnavailable = errors.New("analysis: service unavailable")
	// ErrNoSafeResult is returned by SafeResultStore.Read when nothing has
	// been persisted.
	ErrNoSafeResult = errors.New("analysis: no safe result")
)

// Failure describes a rejected response.
type Failure struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(kind FailureKind, detail string, err error) *Failure {
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

// Result is the outcome of one analysis.
type Result struct {
	Approved    bool        `json:"approved"`
	FinalText   string      `json:"final_caption"`
	RiskLevel   RiskLevel   `json:"risk_level"`
	RiskReason  string      `json:"risk_reason"`
	Style       Style       `json:"caption_style"`
	Score       *int        `json:"transformation_score,omitempty"`
	Verdict     string      `json:"verdict,omitempty"`
	Source      string      `json:"source"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
}

// SafeResult is the last accepted text.
type SafeResult struct {
	FinalText string    `json:"caption_final"`
	Origin    string    `json:"last_source"`
	Timestamp time.Time `json:"timestamp"`
}

// timestampLayouts are tried in order when reading a stored SafeResult.
// Zone-less layouts are read in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// UnmarshalJSON reads the stored document. The timestamp is parsed best
// effort: a missing or unrecognised value leaves it zero and never
// invalidates the text.
func (r *SafeResult) UnmarshalJSON(data []byte) error {
	var doc struct {
		FinalText string          `json:"caption_final"`
		Origin    string          `json:"last_source"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*r = SafeResult{FinalText: doc.FinalText, Origin: doc.Origin}

	var ts string
	if json.Unmarshal(doc.Timestamp, &ts) != nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.Local); err == nil {
			r.Timestamp = t
			break
		}
	}
	return nil
}

// DefaultOrigin tags results derived from public social media clips.
const DefaultOrigin = "public_social_media"
