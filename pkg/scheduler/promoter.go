package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/swargawasal/Final-output-03/pkg/guard"
	"github.com/swargawasal/Final-output-03/pkg/platform"
	"github.com/swargawasal/Final-output-03/pkg/templater"
)

// DefaultDelay is how long a scheduled promotion waits after upload.
const DefaultDelay = 180 * time.Second

// Promotion describes the video being promoted.
type Promotion struct {
	Link      string
	ClipCount int
}

// Promoter renders a promotion, then posts it through the gate.
type Promoter struct {
	gate      *guard.Gate
	templater *templater.Templater
	platform  platform.Platform
	scheduler *Scheduler
	delay     time.Duration
	logger    *slog.Logger
}

// NewPromoter wires the promotion path. A non-positive delay uses DefaultDelay.
func NewPromoter(gate *guard.Gate, tmpl *templater.Templater, p platform.Platform, sched *Scheduler, delay time.Duration) *Promoter {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Promoter{
		gate:      gate,
		templater: tmpl,
		platform:  p,
		scheduler: sched,
		delay:     delay,
		logger:    slog.Default().With("component", "promoter"),
	}
}

// SetLogger replaces the component logger.
func (p *Promoter) SetLogger(l *slog.Logger) {
	p.logger = l.With("component", "promoter")
}

// Delay returns the configured scheduling delay.
func (p *Promoter) Delay() time.Duration { return p.delay }

func (p *Promoter) candidate(pr Promotion) guard.Candidate {
	text, idx := p.templater.Render(templater.Params{Count: pr.ClipCount, Link: pr.Link})
	c := guard.NewCandidate(text, pr.Link)
	p.logger.Debug("promotion rendered",
		"template_set", templater.TemplateSetVersion,
		"template", idx,
	)
	return c
}

func (p *Promoter) attempt(ctx context.Context, c guard.Candidate) guard.Outcome {
	return p.gate.Attempt(ctx, c, platform.Resolve(p.platform), platform.Perform(p.platform))
}

// PromoteNow renders and attempts the promotion synchronously.
func (p *Promoter) PromoteNow(ctx context.Context, pr Promotion) guard.Outcome {
	return p.attempt(ctx, p.candidate(pr))
}

// SchedulePromotion attempts the promotion after delay, or after the
// configured delay when none is given.
func (p *Promoter) SchedulePromotion(ctx context.Context, pr Promotion, delay ...time.Duration) *Task {
	d := p.delay
	if len(delay) > 0 && delay[0] >= 0 {
		d = delay[0]
	}
	return p.scheduler.Schedule(ctx, d,
		func() guard.Candidate { return p.candidate(pr) },
		p.attempt,
	)
}
