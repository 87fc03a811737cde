package platform

import (
	"context"
	"log/slog"
	"sync"
)

// DryRun logs submissions instead of posting them. It is used when no
// platform credentials are configured.
type DryRun struct {
	Owner  string
	logger *slog.Logger

	mu        sync.Mutex
	submitted []string
}

// NewDryRun returns a DryRun acting as owner.
func NewDryRun(owner string, logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{Owner: owner, logger: logger.With("component", "platform", "mode", "dry-run")}
}

// ResolveOwner reports the fixed owner.
func (d *DryRun) ResolveOwner(ctx context.Context) (string, bool, error) {
	return d.Owner, d.Owner != "", nil
}

// ResolveTarget extracts the video id from reference without a lookup.
func (d *DryRun) ResolveTarget(ctx context.Context, reference string) (string, bool) {
	id := ExtractVideoID(reference)
	return id, id != ""
}

// SubmitAction logs text and keeps it for Submitted.
func (d *DryRun) SubmitAction(ctx context.Context, owner, target, text string) error {
	d.mu.Lock()
	d.submitted = append(d.submitted, text)
	d.mu.Unlock()
	d.logger.InfoContext(ctx, "would post comment", "owner", owner, "video_id", target, "text", text)
	return nil
}

// Submitted returns the texts passed to SubmitAction, oldest first.
func (d *DryRun) Submitted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.submitted...)
}
