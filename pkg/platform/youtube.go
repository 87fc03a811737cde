package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube posts promotions as top-level comments on a video.
type YouTube struct {
	svc    *youtube.Service
	logger *slog.Logger
}

// NewYouTube builds the adapter. Credentials come from opts.
func NewYouTube(ctx context.Context, opts ...option.ClientOption) (*YouTube, error) {
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: new service: %w", err)
	}
	return &YouTube{svc: svc, logger: slog.Default().With("component", "platform")}, nil
}

// SetLogger replaces the component logger.
func (y *YouTube) SetLogger(l *slog.Logger) {
	y.logger = l.With("component", "platform")
}

// ResolveOwner returns the channel id of the authenticated account.
func (y *YouTube) ResolveOwner(ctx context.Context) (string, bool, error) {
	resp, err := y.svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", false, classify("channels.list", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == "" {
		y.logger.WarnContext(ctx, "could not resolve channel id")
		return "", false, nil
	}
	return resp.Items[0].Id, true, nil
}

// ResolveTarget extracts the video id from a watch or short link.
func (y *YouTube) ResolveTarget(ctx context.Context, reference string) (string, bool) {
	id := ExtractVideoID(reference)
	if id == "" {
		y.logger.WarnContext(ctx, "could not extract video id", "reference", reference)
		return "", false
	}
	return id, true
}

// SubmitAction inserts a comment thread on the video.
func (y *YouTube) SubmitAction(ctx context.Context, owner, target, text string) error {
	thread := &youtube.CommentThread{
		Snippet: &youtube.CommentThreadSnippet{
			ChannelId: owner,
			VideoId:   target,
			TopLevelComment: &youtube.Comment{
				Snippet: &youtube.CommentSnippet{TextOriginal: text},
			},
		},
	}
	if _, err := y.svc.CommentThreads.Insert([]string{"snippet"}, thread).Context(ctx).Do(); err != nil {
		return classify("commentThreads.insert", err)
	}
	return nil
}

// APIError carries the HTTP status of a failed platform call.
type APIError struct {
	Op   string
	Code int
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("youtube %s: status %d: %v", e.Op, e.Code, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Op: op, Code: gerr.Code, Err: err}
	}
	return fmt.Errorf("youtube %s: %w", op, err)
}
