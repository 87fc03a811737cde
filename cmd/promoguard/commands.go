package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/swargawasal/Final-output-03/pkg/guard"
	"github.com/swargawasal/Final-output-03/pkg/scheduler"
	"github.com/swargawasal/Final-output-03/pkg/templater"
)

// runPromoteCmd implements `promoguard promote`.
//
// Exit codes:
//
//	0 = attempt finished (performed or skipped)
//	1 = scheduled attempt dropped before it ran
//	2 = usage or setup error
func runPromoteCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("promote", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		url   string
		clips int
		delay time.Duration
		now   bool
	)
	cmd.StringVar(&url, "url", "", "Video URL to promote (REQUIRED)")
	cmd.IntVar(&clips, "clips", 0, "Number of clips in the compilation (REQUIRED)")
	cmd.DurationVar(&delay, "delay", -1, "Delay before posting (default from PROMOGUARD_SCHEDULE_DELAY)")
	cmd.BoolVar(&now, "now", false, "Post immediately (manual mode)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if url == "" || clips <= 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --url and a positive --clips are required")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close()

	p, gate, err := a.promotionTarget(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	sched := scheduler.New()
	sched.SetLogger(a.logger)
	defer sched.Close()

	promoter := scheduler.NewPromoter(gate, templater.New(nil), p, sched, a.cfg.ScheduleDelay)
	promoter.SetLogger(a.logger)
	promo := scheduler.Promotion{Link: url, ClipCount: clips}

	var out guard.Outcome
	if now {
		out = promoter.PromoteNow(ctx, promo)
	} else {
		var task *scheduler.Task
		if delay >= 0 {
			task = promoter.SchedulePromotion(ctx, promo, delay)
		} else {
			task = promoter.SchedulePromotion(ctx, promo)
		}
		out, err = task.Wait(context.Background())
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "promotion dropped: %v\n", err)
			return 1
		}
	}

	return writeJSON(stdout, stderr, outcomeView(out))
}

type outcomeJSON struct {
	Status      guard.Status `json:"status"`
	Reason      guard.Reason `json:"reason,omitempty"`
	Remaining   string       `json:"remaining,omitempty"`
	Fingerprint string       `json:"fingerprint"`
	Error       string       `json:"error,omitempty"`
}

func outcomeView(o guard.Outcome) outcomeJSON {
	v := outcomeJSON{Status: o.Status, Reason: o.Reason, Fingerprint: o.Fingerprint}
	if o.Remaining > 0 {
		v.Remaining = o.Remaining.Round(time.Second).String()
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return v
}

// transforms collects repeated k=v flags.
type transforms map[string]string

func (t transforms) String() string {
	parts := make([]string, 0, len(t))
	for k, v := range t {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (t transforms) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("want key=value, got %q", s)
	}
	t[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}

// runCaptionCmd implements `promoguard caption`. It always prints a result;
// service and validation failures produce a fallback caption.
func runCaptionCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("caption", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var title string
	trans := transforms{}
	cmd.StringVar(&title, "title", "", "Clip title or visual description (REQUIRED)")
	cmd.Var(trans, "transform", "Transformation applied, as key=value (repeatable)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(title) == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --title is required")
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close()

	editor, err := a.editor(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	return writeJSON(stdout, stderr, editor.Analyze(ctx, title, trans))
}

// runStateCmd implements `promoguard state`.
func runStateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("state", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close()

	snap := a.gate.Snapshot(ctx)
	view := struct {
		LastActionTime *time.Time `json:"last_action_time"`
		Remaining      string     `json:"remaining"`
		HistoryLen     int        `json:"history_len"`
		HistoryLimit   int        `json:"history_limit"`
		Cooldown       string     `json:"cooldown"`
	}{
		Remaining:    snap.Remaining.Round(time.Second).String(),
		HistoryLen:   snap.HistoryLen,
		HistoryLimit: a.gate.Config().HistoryLimit,
		Cooldown:     a.gate.Config().Cooldown.String(),
	}
	if !snap.LastActionTime.IsZero() {
		t := snap.LastActionTime.UTC()
		view.LastActionTime = &t
	}
	return writeJSON(stdout, stderr, view)
}

// runLedgerCmd implements `promoguard ledger`.
func runLedgerCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ledger", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var limit int
	cmd.IntVar(&limit, "limit", 20, "Maximum entries to show")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	a, err := newApp(ctx, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer a.close()

	if a.ledger == nil {
		_, _ = fmt.Fprintln(stderr, "Error: PROMOGUARD_LEDGER_DSN is not set")
		return 2
	}
	entries, err := a.ledger.List(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return writeJSON(stdout, stderr, entries)
}

func writeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}
