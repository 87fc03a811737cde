package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
)

// Policy configures the acceptance rules.
type Policy struct {
	MinWords           int
	MaxWords           int
	BannedPrefixes     []string
	BannedExactPhrases []string
	CustomRules        []string
	// MaxResponseBytes bounds the raw response handed to Validate. Zero
	// means DefaultMaxResponseBytes.
	MaxResponseBytes int
}

// DefaultMaxResponseBytes caps raw responses; longer ones are malformed.
const DefaultMaxResponseBytes = 64 << 10

// maxExtractAttempts bounds how many '{' positions extractObject decodes from.
const maxExtractAttempts = 64

// DefaultPolicy returns the built-in rules.
func DefaultPolicy() Policy {
	return Policy{
		MinWords:           4,
		MaxWords:           25,
		BannedPrefixes:     []string{"caption:", "title:", "description:", "output:"},
		BannedExactPhrases: []string{"editorial", "approved", "safe context", "public domain", "ypp safe"},
		MaxResponseBytes:   DefaultMaxResponseBytes,
	}
}

const (
	defaultRiskReason = "Approved by safety filter"
	rejectedReason    = "Brain rejected content"
	defaultScore      = 10
	defaultVerdict    = "Derivative"
)

// recordSchema is the structural contract of an analysis record. Fields are
// optional; absent approval is a rejection.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "caption_final": {"type": "string"},
    "approved": {"type": "boolean"},
    "risk_level": {"type": "string"},
    "risk_reason": {"type": "string"},
    "transformation_score": {"type": "number"},
    "verdict": {"type": "string"}
  }
}`

const recordSchemaURL = "https://promoguard.schemas.local/analysis/record.schema.json"

type record struct {
	CaptionFinal        string   `json:"caption_final"`
	Approved            bool     `json:"approved"`
	RiskLevel           string   `json:"risk_level"`
	RiskReason          string   `json:"risk_reason"`
	TransformationScore *float64 `json:"transformation_score"`
	Verdict             string   `json:"verdict"`
}

// Validator applies the acceptance rules to raw analysis output. It holds no
// mutable state and is safe for concurrent use.
type Validator struct {
	policy   Policy
	prefixes []string
	phrases  map[string]bool
	schema   *jsonschema.Schema
	rules    *RuleSet
}

// NewValidator compiles policy.
func NewValidator(policy Policy) (*Validator, error) {
	if policy.MinWords <= 0 {
		policy.MinWords = DefaultPolicy().MinWords
	}
	if policy.MaxWords <= 0 {
		policy.MaxWords = DefaultPolicy().MaxWords
	}
	if policy.MaxResponseBytes <= 0 {
		policy.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if policy.MinWords > policy.MaxWords {
		return nil, fmt.Errorf("analysis: min_words %d exceeds max_words %d", policy.MinWords, policy.MaxWords)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(recordSchemaURL, strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("analysis schema load failed: %w", err)
	}
	schema, err := c.Compile(recordSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("analysis schema compile failed: %w", err)
	}

	rules, err := CompileRules(policy.CustomRules)
	if err != nil {
		return nil, fmt.Errorf("analysis custom rules: %w", err)
	}

	v := &Validator{
		policy:  policy,
		phrases: make(map[string]bool, len(policy.BannedExactPhrases)),
		schema:  schema,
		rules:   rules,
	}
	for _, p := range policy.BannedPrefixes {
		v.prefixes = append(v.prefixes, strings.ToLower(p))
	}
	for _, p := range policy.BannedExactPhrases {
		v.phrases[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return v, nil
}

// Policy returns the effective policy.
func (v *Validator) Policy() Policy { return v.policy }

// Validate extracts the first well-formed JSON object from raw and checks it.
// A content rejection is returned as a Result with Approved=false and no
// Failure. Any other problem returns a Failure and a zero Result; the caller
// must substitute a fallback.
func (v *Validator) Validate(raw, originalContext string) (Result, *Failure) {
	if len(raw) > v.policy.MaxResponseBytes {
		return Result{}, fail(FailureMalformedResponse,
			fmt.Sprintf("response is %d bytes, limit %d", len(raw), v.policy.MaxResponseBytes), nil)
	}
	segment, ok := extractObject(raw)
	if !ok {
		return Result{}, fail(FailureMalformedResponse, "no JSON object found", nil)
	}

	var doc any
	if err := json.Unmarshal(segment, &doc); err != nil {
		return Result{}, fail(FailureMalformedResponse, "decode", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return Result{}, fail(FailureMalformedResponse, "schema", err)
	}
	var rec record
	if err := json.Unmarshal(segment, &rec); err != nil {
		return Result{}, fail(FailureMalformedResponse, "decode record", err)
	}

	if !rec.Approved {
		reason := rec.RiskReason
		if reason == "" {
			reason = rejectedReason
		}
		return Result{
			Approved:   false,
			FinalText:  originalContext,
			RiskLevel:  RiskHigh,
			RiskReason: reason,
			Style:      StyleValidated,
			Source:     DefaultOrigin,
		}, nil
	}

	caption := strings.TrimSpace(norm.NFC.String(rec.CaptionFinal))
	if f := v.Check(caption); f != nil {
		return Result{}, f
	}

	reason := rec.RiskReason
	if reason == "" {
		reason = defaultRiskReason
	}
	verdict := rec.Verdict
	if verdict == "" {
		verdict = defaultVerdict
	}
	score := defaultScore
	if rec.TransformationScore != nil {
		score = clampScore(*rec.TransformationScore)
	}
	return Result{
		Approved:   true,
		FinalText:  caption,
		RiskLevel:  parseRisk(rec.RiskLevel),
		RiskReason: reason,
		Style:      StyleValidated,
		Score:      &score,
		Verdict:    verdict,
		Source:     DefaultOrigin,
	}, nil
}

// Check applies the text rules in order: length, prefix, classification,
// symbol, then custom rules.
func (v *Validator) Check(caption string) *Failure {
	words := len(strings.Fields(caption))
	if words < v.policy.MinWords || words > v.policy.MaxWords {
		return fail(FailureLengthViolation,
			fmt.Sprintf("%d words, want %d-%d", words, v.policy.MinWords, v.policy.MaxWords), nil)
	}

	lower := strings.ToLower(caption)
	for _, p := range v.prefixes {
		if strings.HasPrefix(lower, p) {
			return fail(FailureLabelPrefix, p, nil)
		}
	}

	if v.phrases[lower] {
		return fail(FailureClassificationLeak, lower, nil)
	}

	if strings.ContainsAny(caption, "#@") {
		return fail(FailureDisallowedSymbol, "contains # or @", nil)
	}

	return v.rules.Check(caption, words)
}

// extractObject returns the first JSON object in raw that decodes cleanly,
// trying each '{' in order up to maxExtractAttempts of them.
func extractObject(raw string) ([]byte, bool) {
	attempts := 0
	for i := 0; i < len(raw) && attempts < maxExtractAttempts; i++ {
		if raw[i] != '{' {
			continue
		}
		attempts++
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		var obj map[string]json.RawMessage
		if err := dec.Decode(&obj); err != nil {
			continue
		}
		return []byte(raw[i : i+int(dec.InputOffset())]), true
	}
	return nil, false
}

func parseRisk(s string) RiskLevel {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	default:
		return RiskLow
	}
}

func clampScore(f float64) int {
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return int(f + 0.5)
	}
}
