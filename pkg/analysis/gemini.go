package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/genai"
)

// Request is one analysis input.
type Request struct {
	Description     string
	Origin          string
	Transformations map[string]string
}

// Analyzer calls the content-analysis service and returns its raw text.
// Implementations wrap ErrRateLimited or ErrServiceUnavailable on failure.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (string, error)
}

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

const editorPrompt = `You write display captions for short fashion clips and rate their monetization risk.

CAPTION RULES
- Natural, human, editorial tone; monetization safe.
- No sexual wording, no thirst language. At most one emoji.
- 8-15 words.
- No hashtags, no usernames, no formatting symbols (*, #, [], etc.).
- Never output a label ("Aesthetic", "Editorial", "Safe", "Approved") in place of a caption.

TRANSFORMATION SCORING
- Voiceover or inpainting present: score above 40 (Transformative).
- Only speed or color changes: score below 30 (Derivative).
- Raw clip: score 0.

Return ONLY a JSON object:
{
  "caption_final": "<display text>",
  "approved": true,
  "risk_level": "LOW|MEDIUM|HIGH",
  "risk_reason": "<one sentence>",
  "transformation_score": <0-100>,
  "verdict": "<Transformative|Derivative|High Risk>"
}
risk_level is HIGH for sexual, violent or controversial content. verdict is
"Transformative" when the score is above 30, else "Derivative".

INPUT:
Visual Description: %s
Niche: %s
Transformations Applied: %s
`

// BuildPrompt renders the editor prompt for req. Transformations are listed
// in key order.
func BuildPrompt(req Request) string {
	origin := req.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	trans := "None"
	if len(req.Transformations) > 0 {
		keys := make([]string, 0, len(req.Transformations))
		for k := range req.Transformations {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+req.Transformations[k])
		}
		trans = strings.Join(parts, ", ")
	}
	return fmt.Sprintf(editorPrompt, req.Description, origin, trans)
}

// GeminiAnalyzer asks a Gemini model for a caption record.
type GeminiAnalyzer struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiAnalyzer creates a client for the Gemini API.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	return NewGeminiAnalyzerWithConfig(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, model)
}

// NewGeminiAnalyzerWithConfig creates an analyzer from a full client config.
func NewGeminiAnalyzerWithConfig(ctx context.Context, cfg *genai.ClientConfig, model string) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{client: client, model: model, temperature: 0.3}, nil
}

// Model returns the model name.
func (g *GeminiAnalyzer) Model() string { return g.model }

// Analyze sends the editor prompt and returns the response text.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(req)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", classifyServiceError(err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// classifyServiceError maps quota errors to ErrRateLimited and everything
// else to ErrServiceUnavailable.
func classifyServiceError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
