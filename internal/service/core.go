// Package service holds the engagement, moderation and threading engines and
// the Core facade the HTTP and CLI boundaries call.
package service

import (
	"context"
	"log/slog"
	"time"

	"agora/internal/cache"
	"agora/internal/identity"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/validation"
)

// InvalidationSink receives the cache keys made stale by a successful mutation.
type InvalidationSink interface {
	Invalidate(ctx context.Context, keys []string) error
}

// SinkFunc adapts a function to InvalidationSink.
type SinkFunc func(ctx context.Context, keys []string) error

func (f SinkFunc) Invalidate(ctx context.Context, keys []string) error { return f(ctx, keys) }

// NopSink discards invalidations.
var NopSink = SinkFunc(func(context.Context, []string) error { return nil })

// DefaultInvalidationTimeout bounds a single sink call.
const DefaultInvalidationTimeout = 500 * time.Millisecond

// Options tunes the engines. Zero values fall back to defaults.
type Options struct {
	Limits              validation.Limits
	ToggleMaxAttempts   int
	ToggleRetryBase     time.Duration
	InvalidationTimeout time.Duration
	CommentsCacheTTL    time.Duration
}

// Core exposes every operation of the engagement system. Each mutating call
// takes the resolved principal and hands its invalidation keys to the sink
// exactly once on success.
type Core struct {
	resolver   *identity.Resolver
	engagement *EngagementService
	moderation *ModerationService
	comments   *CommentService
	boards     *BoardService

	sink        InvalidationSink
	sinkTimeout time.Duration
}

// NewCore wires the engines over the given stores. A nil sink discards
// invalidations and a nil aside disables listing caching.
func NewCore(content repository.ContentStore, boards repository.BoardStore, resolver *identity.Resolver, sink InvalidationSink, aside *cache.Aside, opts Options) *Core {
	if opts.Limits == (validation.Limits{}) {
		opts.Limits = validation.DefaultLimits()
	}
	if opts.InvalidationTimeout <= 0 {
		opts.InvalidationTimeout = DefaultInvalidationTimeout
	}
	if sink == nil {
		sink = NopSink
	}
	if resolver == nil {
		resolver = identity.NewResolver()
	}
	return &Core{
		resolver:    resolver,
		engagement:  NewEngagementService(content, opts.ToggleMaxAttempts, opts.ToggleRetryBase),
		moderation:  NewModerationService(content, opts.Limits),
		comments:    NewCommentService(content, opts.Limits, aside, opts.CommentsCacheTTL),
		boards:      NewBoardService(boards, content, opts.Limits),
		sink:        sink,
		sinkTimeout: opts.InvalidationTimeout,
	}
}

// ResolveIdentity maps request credentials to a principal. It never fails.
func (c *Core) ResolveIdentity(ctx context.Context, creds identity.Credentials) identity.Resolution {
	return c.resolver.Resolve(ctx, creds)
}

func (c *Core) ToggleEngagement(ctx context.Context, principal models.Principal, ref models.ContentRef, d models.Direction) (*ToggleResult, error) {
	result, content, err := c.engagement.Toggle(ctx, ref, principal, d)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, invalidationKeys(content))
	return result, nil
}

func (c *Core) CreateComment(ctx context.Context, principal models.Principal, in CreateCommentInput) (*models.Content, error) {
	comment, keys, err := c.comments.Create(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keys)
	return models.ContentFromComment(comment), nil
}

func (c *Core) EditContent(ctx context.Context, principal models.Principal, ref models.ContentRef, in EditInput) (*models.Content, error) {
	content, keys, err := c.moderation.Edit(ctx, ref, principal, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keys)
	return content, nil
}

func (c *Core) RemoveContent(ctx context.Context, principal models.Principal, ref models.ContentRef) (*models.Content, error) {
	content, keys, err := c.moderation.Remove(ctx, ref, principal)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keys)
	return content, nil
}

func (c *Core) ListThreadedComments(ctx context.Context, postID uint) ([]models.ThreadedComment, error) {
	return c.comments.ListThreaded(ctx, postID)
}

func (c *Core) CreateBoard(ctx context.Context, principal models.Principal, in CreateBoardInput) (*models.Board, error) {
	board, keys, err := c.boards.CreateBoard(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keys)
	return board, nil
}

func (c *Core) CreatePost(ctx context.Context, principal models.Principal, in CreatePostInput) (*models.Content, error) {
	post, keys, err := c.boards.CreatePost(ctx, principal, in)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, keys)
	return post, nil
}

func (c *Core) RecordView(ctx context.Context, postID uint) error {
	return c.boards.RecordView(ctx, postID)
}

func (c *Core) GetContent(ctx context.Context, ref models.ContentRef) (*models.Content, error) {
	return c.boards.GetContent(ctx, ref)
}

// invalidate hands keys to the sink with a bounded timeout that outlives the
// caller's cancellation. Failures are logged and counted, never returned.
func (c *Core) invalidate(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sinkTimeout)
	defer cancel()

	if err := c.sink.Invalidate(sinkCtx, keys); err != nil {
		observability.InvalidationsDispatched.WithLabelValues("failed").Inc()
		observability.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys), slog.String("error", err.Error()))
		return
	}
	observability.InvalidationsDispatched.WithLabelValues("ok").Inc()
}
