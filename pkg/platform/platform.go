// Package platform adapts the promotion platform to the guard's resolve and
// perform hooks.
package platform

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/swargawasal/Final-output-03/pkg/guard"
)

// Platform is the external promotion service.
type Platform interface {
	// ResolveOwner returns the acting account id. ok=false when the
	// credentials are not linked to an account.
	ResolveOwner(ctx context.Context) (id string, ok bool, err error)
	// ResolveTarget maps a free-form reference to a target id.
	ResolveTarget(ctx context.Context, reference string) (id string, ok bool)
	// SubmitAction posts text on target as owner.
	SubmitAction(ctx context.Context, owner, target, text string) error
}

// ErrNoPlatform is returned by Perform when no platform is configured.
var ErrNoPlatform = errors.New("platform: not configured")

// Resolve returns a guard.ResolveFunc that resolves owner and target via p.
func Resolve(p Platform) guard.ResolveFunc {
	return func(ctx context.Context, c guard.Candidate) (guard.Target, bool, error) {
		if p == nil {
			return guard.Target{}, false, ErrNoPlatform
		}
		owner, ok, err := p.ResolveOwner(ctx)
		if err != nil || !ok {
			return guard.Target{}, false, err
		}
		target, ok := p.ResolveTarget(ctx, c.Reference)
		if !ok {
			return guard.Target{}, false, nil
		}
		return guard.Target{Owner: owner, Target: target}, true, nil
	}
}

// Perform returns a guard.PerformFunc that submits the candidate content.
func Perform(p Platform) guard.PerformFunc {
	return func(ctx context.Context, t guard.Target, c guard.Candidate) error {
		if p == nil {
			return ErrNoPlatform
		}
		return p.SubmitAction(ctx, t.Owner, t.Target, c.Content)
	}
}

// ExtractVideoID pulls the video id out of a short youtu.be link or a watch
// URL carrying a v= parameter. It returns "" when neither form matches.
func ExtractVideoID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.Contains(ref, "youtu.be") {
		last := ref[strings.LastIndex(ref, "/")+1:]
		id, _, _ := strings.Cut(last, "?")
		return id
	}
	if u, err := url.Parse(ref); err == nil {
		if v := u.Query().Get("v"); v != "" {
			return v
		}
	}
	if i := strings.LastIndex(ref, "v="); i >= 0 {
		id, _, _ := strings.Cut(ref[i+2:], "&")
		return id
	}
	return ""
}
