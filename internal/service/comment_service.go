package service

import (
	"context"
	"log/slog"
	"time"

	"agora/internal/cache"
	"agora/internal/models"
	"agora/internal/observability"
	"agora/internal/repository"
	"agora/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

type CreateCommentInput struct {
	PostID   uint
	Body     string
	ParentID *uint
}

// CommentService creates comments and renders one-level threads.
type CommentService struct {
	store  repository.ContentStore
	limits validation.Limits
	aside  *cache.Aside
	ttl    time.Duration
}

// NewCommentService builds the service. A nil aside disables listing caching.
func NewCommentService(store repository.ContentStore, limits validation.Limits, aside *cache.Aside, ttl time.Duration) *CommentService {
	if aside == nil {
		aside = cache.NewAside(nil)
	}
	if ttl <= 0 {
		ttl = cache.DefaultCommentsTTL
	}
	return &CommentService{store: store, limits: limits, aside: aside, ttl: ttl}
}

func (s *CommentService) livePost(ctx context.Context, postID uint) (*models.Content, error) {
	post, err := s.store.GetContent(ctx, models.PostRef(postID))
	if err != nil {
		return nil, err
	}
	if post.IsDeleted {
		return nil, models.NewNotFoundError("post", postID)
	}
	return post, nil
}

// checkParent enforces the one-level threading rule.
func (s *CommentService) checkParent(ctx context.Context, postID, parentID uint) error {
	parent, err := s.store.GetContent(ctx, models.CommentRef(parentID))
	if err != nil {
		if models.KindOf(err) == models.KindNotFound {
			return models.NewInvalidParentError("Parent comment does not exist")
		}
		return err
	}
	switch {
	case parent.PostID != postID:
		return models.NewInvalidParentError("Parent comment belongs to another post")
	case parent.IsDeleted:
		return models.NewInvalidParentError("Parent comment was removed")
	case parent.ParentCommentID != nil:
		return models.NewInvalidParentError("Replies cannot have replies")
	}
	return nil
}

// Create adds a root comment or a reply to a root comment.
func (s *CommentService) Create(ctx context.Context, principal models.Principal, in CreateCommentInput) (*models.Comment, []string, error) {
	ctx, span := observability.StartSpan(ctx, "comments", "Create", attribute.Int("post_id", int(in.PostID)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if !principal.Valid() {
		err = models.NewValidationError("principal is required")
		return nil, nil, err
	}
	body, err := s.limits.CommentBody(in.Body)
	if err != nil {
		return nil, nil, err
	}
	if _, err = s.livePost(ctx, in.PostID); err != nil {
		return nil, nil, err
	}
	if in.ParentID != nil {
		if err = s.checkParent(ctx, in.PostID, *in.ParentID); err != nil {
			return nil, nil, err
		}
	}

	comment := &models.Comment{
		PostID:          in.PostID,
		ParentCommentID: in.ParentID,
		Body:            body,
		Author:          principal,
	}
	if err = s.store.InsertComment(ctx, comment); err != nil {
		return nil, nil, err
	}

	kind := "root"
	if comment.IsReply() {
		kind = "reply"
	}
	observability.CommentsCreated.WithLabelValues(kind).Inc()
	return comment, invalidationKeys(models.ContentFromComment(comment)), nil
}

// ListThreaded returns the live comments of a live post as roots with their
// replies, both ordered by creation time then id. Listings are cached per post.
func (s *CommentService) ListThreaded(ctx context.Context, postID uint) ([]models.ThreadedComment, error) {
	ctx, span := observability.StartSpan(ctx, "comments", "ListThreaded", attribute.Int("post_id", int(postID)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var out []models.ThreadedComment
	err = s.aside.Get(ctx, cache.PostCommentsKey(postID), &out, s.ttl, func(ctx context.Context) (any, error) {
		if _, err := s.livePost(ctx, postID); err != nil {
			return nil, err
		}
		comments, err := s.store.ListCommentsByPost(ctx, postID)
		if err != nil {
			return nil, err
		}
		return Thread(ctx, comments), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Thread groups comments, already ordered by created_at then id, into roots
// and replies. Replies whose parent is missing or is itself a reply are dropped.
func Thread(ctx context.Context, comments []*models.Comment) []models.ThreadedComment {
	roots := make([]models.ThreadedComment, 0, len(comments))
	index := make(map[uint]int)
	for _, c := range comments {
		if c.IsReply() {
			continue
		}
		index[c.ID] = len(roots)
		roots = append(roots, models.ThreadedComment{CommentView: models.NewCommentView(c), Replies: []models.CommentView{}})
	}

	for _, c := range comments {
		if !c.IsReply() {
			continue
		}
		i, ok := index[*c.ParentCommentID]
		if !ok {
			observability.Logger.DebugContext(ctx, "dropping orphaned reply",
				slog.Uint64("comment_id", uint64(c.ID)), slog.Uint64("parent_id", uint64(*c.ParentCommentID)))
			continue
		}
		roots[i].Replies = append(roots[i].Replies, models.NewCommentView(c))
	}
	return roots
}
